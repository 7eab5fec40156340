package api

import (
	"embed"
	"fmt"
	"html/template"
	"math"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

const capturedAtFormat = "2006-01-02T15:04:05.000000"

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"fmtPrice": fmtPrice,
		"fmtTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04")
		},
		"fmtCaptured": fmtCaptured,
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

// fmtPrice renders a forint amount. Shelf prices are whole forints; unit
// prices can carry fractions.
func fmtPrice(p *float64) string {
	if p == nil {
		return ""
	}
	if *p == math.Trunc(*p) {
		return fmt.Sprintf("%.0f Ft", *p)
	}
	return fmt.Sprintf("%.2f Ft", *p)
}

// fmtCaptured shortens a stored capture timestamp for display. Unparseable
// values show as stored.
func fmtCaptured(capturedAt string) string {
	t, err := time.Parse(capturedAtFormat, capturedAt)
	if err != nil {
		return capturedAt
	}
	return t.Format("2006-01-02 15:04")
}

package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"pricewatch/internal/imagegen"
	"pricewatch/internal/series"
)

// sparklineDays is the window rendered by the thumbnail endpoint. Full
// history belongs on the product page chart, not in a 280px strip.
const sparklineDays = 30

func imageDim(r *http.Request, key string, def, min, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) handleSparkline(w http.ResponseWriter, r *http.Request) {
	tpnc := r.PathValue("tpnc")
	width := imageDim(r, "w", imagegen.DefaultWidth, 40, 1200)
	height := imageDim(r, "h", imagegen.DefaultHeight, 20, 400)

	key := fmt.Sprintf("%s:%dx%d", tpnc, width, height)
	if png, ok := s.sparklines.Get(key); ok {
		serveSparklinePNG(w, png)
		return
	}

	product, err := s.store.GetProduct(tpnc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if product == nil {
		http.NotFound(w, r)
		return
	}

	obs, err := s.store.ObservationsFor(tpnc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prices, _ := series.Reconstruct(obs, s.loc, time.Now())
	if len(prices) > sparklineDays {
		prices = prices[len(prices)-sparklineDays:]
	}

	png, err := imagegen.RenderSparkline(prices, width, height)
	if errors.Is(err, imagegen.ErrNoData) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("api: sparkline for %s: %v", tpnc, err)
		http.Error(w, "image generation failed", http.StatusInternalServerError)
		return
	}

	s.sparklines.Set(key, png)
	serveSparklinePNG(w, png)
}

func serveSparklinePNG(w http.ResponseWriter, png []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=600")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	if _, err := w.Write(png); err != nil {
		log.Printf("api: write sparkline: %v", err)
	}
}

// Package imagegen renders product price history as small PNG sparklines
// for product cards and link previews.
package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/vector"

	"pricewatch/internal/series"
)

// Default sparkline dimensions, sized for the product list cards.
const (
	DefaultWidth  = 280
	DefaultHeight = 64
)

const (
	pad        = 4.0
	strokeHalf = 1.25
	dotHalf    = 2.0
)

var (
	actualColor   = color.RGBA{R: 0x00, G: 0x53, B: 0x9f, A: 0xff}
	clubcardColor = color.RGBA{R: 0xd9, G: 0x8c, B: 0x00, A: 0xff}
)

// ErrNoData means the series holds no drawable prices.
var ErrNoData = errors.New("series has no prices to draw")

// RenderSparkline draws a contiguous daily series as a PNG polyline on a
// transparent background. Days without an observation break the stroke, so
// gaps in the record stay visible instead of being interpolated away.
// Clubcard prices get a second stroke under the shelf-price one. Zero or
// negative dimensions fall back to the defaults.
func RenderSparkline(s series.ProductSeries, width, height int) ([]byte, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	lo, hi, ok := priceRange(s)
	if !ok {
		return nil, ErrNoData
	}

	actual := make([]*float64, len(s))
	clubcard := make([]*float64, len(s))
	for i, day := range s {
		actual[i] = day.ActualPrice
		clubcard[i] = day.ClubcardPrice
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	drawPolyline(img, clubcard, lo, hi, clubcardColor)
	drawPolyline(img, actual, lo, hi, actualColor)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode sparkline: %w", err)
	}
	return buf.Bytes(), nil
}

// priceRange finds the vertical scale across both price kinds so the two
// strokes share one axis.
func priceRange(s series.ProductSeries) (lo, hi float64, ok bool) {
	for _, day := range s {
		for _, p := range [...]*float64{day.ActualPrice, day.ClubcardPrice} {
			if p == nil {
				continue
			}
			if !ok {
				lo, hi, ok = *p, *p, true
				continue
			}
			if *p < lo {
				lo = *p
			}
			if *p > hi {
				hi = *p
			}
		}
	}
	return lo, hi, ok
}

// drawPolyline strokes the known runs of one price kind. Isolated points,
// including a run cut short by a gap, are drawn as dots.
func drawPolyline(img *image.RGBA, prices []*float64, lo, hi float64, col color.RGBA) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	z := vector.NewRasterizer(w, h)
	drew := false

	var prevX, prevY float32
	runLen := 0
	for i, p := range prices {
		if p == nil {
			if runLen == 1 {
				dot(z, prevX, prevY)
				drew = true
			}
			runLen = 0
			continue
		}
		x := xAt(i, len(prices), w)
		y := yAt(*p, lo, hi, h)
		if runLen > 0 {
			strokeSegment(z, prevX, prevY, x, y)
			drew = true
		}
		prevX, prevY = x, y
		runLen++
	}
	if runLen == 1 {
		dot(z, prevX, prevY)
		drew = true
	}

	if drew {
		z.Draw(img, bounds, image.NewUniform(col), image.Point{})
	}
}

func xAt(i, n, w int) float32 {
	if n <= 1 {
		return float32(w) / 2
	}
	usable := float32(w) - 2*pad
	return pad + float32(i)*usable/float32(n-1)
}

func yAt(v, lo, hi float64, h int) float32 {
	// A flat series centres vertically rather than dividing by zero.
	if hi == lo {
		return float32(h) / 2
	}
	usable := float64(h) - 2*pad
	return float32(pad + (hi-v)/(hi-lo)*usable)
}

// strokeSegment adds a filled quad approximating a thick line segment. The
// rasterizer fills paths rather than stroking them, so each segment becomes
// a rectangle offset by the stroke's half width along the segment normal.
func strokeSegment(z *vector.Rasterizer, x1, y1, x2, y2 float32) {
	dx, dy := float64(x2-x1), float64(y2-y1)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx := float32(-dy / length * strokeHalf)
	ny := float32(dx / length * strokeHalf)
	z.MoveTo(x1+nx, y1+ny)
	z.LineTo(x2+nx, y2+ny)
	z.LineTo(x2-nx, y2-ny)
	z.LineTo(x1-nx, y1-ny)
	z.ClosePath()
}

func dot(z *vector.Rasterizer, x, y float32) {
	z.MoveTo(x-dotHalf, y-dotHalf)
	z.LineTo(x+dotHalf, y-dotHalf)
	z.LineTo(x+dotHalf, y+dotHalf)
	z.LineTo(x-dotHalf, y+dotHalf)
	z.ClosePath()
}

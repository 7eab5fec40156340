// Package live pushes reconstructed price series to on-page widgets over
// WebSockets. Each connection shows one product at a time; when the scraper
// records a price change for that product, the widget gets a fresh payload
// without polling.
package live

import (
	"log"
	"sync"
	"time"

	"pricewatch/internal/series"
)

// Source yields the raw observations the engine reconstructs from. The
// store implements it.
type Source interface {
	ObservationsFor(tpnc string) ([]series.Observation, error)
}

// RenderFunc receives the finished payload for the product it was built
// for. It is never called for a product that is no longer active.
type RenderFunc func(tpnc string, payload series.Payload)

// Loader drives one widget surface. At most one load-reconstruct-render
// cycle runs at a time; switching products while a cycle is in flight
// discards that cycle's result instead of rendering it. The generation
// counter makes the staleness check a plain comparison.
type Loader struct {
	source Source
	loc    *time.Location
	render RenderFunc
	today  func() time.Time

	mu       sync.Mutex
	active   string
	gen      uint64
	inflight bool
	pending  bool
	live     float64 // shelf price for the next cycle, 0 when none
}

func NewLoader(source Source, loc *time.Location, render RenderFunc) *Loader {
	return &Loader{
		source: source,
		loc:    loc,
		render: render,
		today:  time.Now,
	}
}

// Show makes tpnc the active product and schedules a cycle for it. A result
// already in flight for the previous product will be discarded on arrival.
func (l *Loader) Show(tpnc string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = tpnc
	l.gen++
	l.live = 0
	l.start(tpnc, l.gen)
}

// Refresh re-runs the cycle for tpnc if it is still the product on screen.
// A positive live price rides along as the current-price override for the
// resulting payload; history stats are untouched. Unlike Show it does not
// invalidate an in-flight cycle; that one is for the same product, so both
// results render and the newer one wins.
func (l *Loader) Refresh(tpnc string, live float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active != tpnc {
		return
	}
	if live > 0 {
		l.live = live
	}
	l.start(tpnc, l.gen)
}

// Active returns the product currently on screen.
func (l *Loader) Active() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// start launches a cycle, or queues one if a cycle is already running.
// The queued override stays on the loader until its cycle spawns. Callers
// hold l.mu.
func (l *Loader) start(tpnc string, gen uint64) {
	if l.inflight {
		l.pending = true
		return
	}
	l.inflight = true
	live := l.live
	l.live = 0
	go l.cycle(tpnc, gen, live)
}

func (l *Loader) cycle(tpnc string, gen uint64, live float64) {
	payload := l.build(tpnc, live)

	l.mu.Lock()
	stale := gen != l.gen
	if l.pending {
		l.pending = false
		next := l.live
		l.live = 0
		go l.cycle(l.active, l.gen, next)
	} else {
		l.inflight = false
	}
	l.mu.Unlock()

	if stale {
		return
	}
	l.render(tpnc, payload)
}

// build fetches history and reconstructs the widget payload. Fetch errors
// degrade to the no-data payload; the widget renders its empty state
// rather than an error.
func (l *Loader) build(tpnc string, live float64) series.Payload {
	obs, err := l.source.ObservationsFor(tpnc)
	if err != nil {
		log.Printf("live: load %s: %v", tpnc, err)
		obs = nil
	}
	prices, stats := series.Reconstruct(obs, l.loc, l.today())
	return series.BuildPayload(prices, series.ApplyLive(stats, live))
}

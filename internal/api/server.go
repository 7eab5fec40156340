// Package api serves the tracker's HTML pages, the JSON price history API,
// sparkline images and the live WebSocket endpoint.
package api

import (
	"context"
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricewatch/internal/imagegen"
	"pricewatch/internal/live"
	"pricewatch/internal/store"
)

// sparklineTTL bounds how stale a cached sparkline can get. Prices change a
// few times a day at most, so minutes of staleness are invisible.
const sparklineTTL = 10 * time.Minute

type Server struct {
	store      *store.Store
	hub        *live.Hub
	listen     string
	loc        *time.Location
	tmpl       *template.Template
	sparklines *imagegen.Cache
}

func NewServer(st *store.Store, hub *live.Hub, listen string, loc *time.Location) *Server {
	return &Server{
		store:      st,
		hub:        hub,
		listen:     listen,
		loc:        loc,
		tmpl:       newTemplates(),
		sparklines: imagegen.NewCache(sparklineTTL),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /products/{tpnc}", s.handleProduct)
	mux.HandleFunc("GET /products/{tpnc}/sparkline.png", s.handleSparkline)
	mux.HandleFunc("GET /api/products/{tpnc}/history", s.handleAPIHistory)
	mux.HandleFunc("GET /api/products/{tpnc}/current", s.handleAPICurrent)
	mux.HandleFunc("GET /api/search", s.handleAPISearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("api: listening on %s", s.listen)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

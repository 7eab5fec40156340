package api

import (
	"net/http"
	"strconv"
	"time"

	"pricewatch/internal/series"
)

// staleRunThreshold marks health degraded when no scrape run has started
// within it. The schedule is daily, so a missed day and a half means the
// scheduler is wedged.
const staleRunThreshold = 36 * time.Hour

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	tpnc := r.PathValue("tpnc")

	exists, err := s.store.ProductExists(tpnc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "unknown product", http.StatusNotFound)
		return
	}

	// An out-of-band shelf price overrides the displayed current price
	// only; absent or non-positive means no override.
	live := 0.0
	if raw := r.URL.Query().Get("live"); raw != "" {
		live, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "live must be a number", http.StatusBadRequest)
			return
		}
	}

	obs, err := s.store.ObservationsFor(tpnc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	prices, stats := series.Reconstruct(obs, s.loc, time.Now())
	writeJSON(w, http.StatusOK, series.BuildPayload(prices, series.ApplyLive(stats, live)))
}

func (s *Server) handleAPICurrent(w http.ResponseWriter, r *http.Request) {
	tpnc := r.PathValue("tpnc")

	rec, err := s.store.LatestPrice(tpnc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "no recorded prices", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, CurrentResponse{
		TPNC:          rec.TPNC,
		CapturedAt:    rec.CapturedAt,
		ActualPrice:   nullFloat(rec.ActualPrice),
		ClubcardPrice: nullFloat(rec.ClubcardPrice),
		IsPromotion:   rec.IsPromotion,
		PromoDesc:     nullStr(rec.PromoDesc),
	})
}

func (s *Server) handleAPISearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	products, err := s.store.SearchProducts(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	results := make([]SearchResult, 0, len(products))
	for _, p := range products {
		results = append(results, SearchResult{
			TPNC:       p.TPNC,
			Name:       p.Name,
			Brand:      nullStr(p.Brand),
			ImageURL:   nullStr(p.ImageURL),
			ProductURL: nullStr(p.ProductURL),
			Active:     p.Active,
		})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}

	if n, err := s.store.CountProducts(); err != nil {
		health.Errors = append(health.Errors, "count products: "+err.Error())
	} else {
		health.Products = n
	}
	if n, err := s.store.CountPriceRows(); err != nil {
		health.Errors = append(health.Errors, "count prices: "+err.Error())
	} else {
		health.PriceRows = n
	}

	run, err := s.store.LastScrapeRun()
	if err != nil {
		health.Errors = append(health.Errors, "last run: "+err.Error())
	} else if run != nil {
		rh := &RunHealth{
			ID:          run.ID,
			Status:      run.Status,
			TriggeredBy: run.TriggeredBy,
			StartedAt:   run.StartedAt,
			Stale:       time.Since(run.StartedAt) > staleRunThreshold,
		}
		if run.FinishedAt.Valid {
			t := run.FinishedAt.Time
			rh.FinishedAt = &t
		}
		health.LastRun = rh
		if rh.Stale || run.Status == "failed" {
			health.Status = "degraded"
		}
	}

	if len(health.Errors) > 0 {
		health.Status = "error"
	}
	code := http.StatusOK
	if health.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

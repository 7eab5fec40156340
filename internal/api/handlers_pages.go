package api

import (
	"log"
	"net/http"
	"time"

	"pricewatch/internal/series"
)

// maxChangeRows caps the price change table on the product page. The chart
// carries the full history.
const maxChangeRows = 20

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := IndexData{
		Query: r.URL.Query().Get("q"),
	}

	if data.Query != "" {
		data.Searched = true
		products, err := s.store.SearchProducts(data.Query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, p := range products {
			row := ProductRow{
				TPNC:  p.TPNC,
				Name:  p.Name,
				Brand: p.Brand.String,
			}
			latest, err := s.store.LatestPrice(p.TPNC)
			if err != nil {
				log.Printf("api: latest price for %s: %v", p.TPNC, err)
			} else if latest != nil {
				row.ActualPrice = nullFloat(latest.ActualPrice)
				row.ClubcardPrice = nullFloat(latest.ClubcardPrice)
				row.IsPromotion = latest.IsPromotion
				row.CapturedAt = latest.CapturedAt
			}
			data.Results = append(data.Results, row)
		}
	}

	if n, err := s.store.CountProducts(); err == nil {
		data.Totals.Products = n
	}
	if n, err := s.store.CountPriceRows(); err == nil {
		data.Totals.PriceRows = n
	}
	if run, err := s.store.LastScrapeRun(); err == nil {
		data.LastRun = run
	}

	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Printf("api: render index: %v", err)
	}
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	tpnc := r.PathValue("tpnc")

	product, err := s.store.GetProduct(tpnc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if product == nil {
		http.NotFound(w, r)
		return
	}

	data := ProductPageData{
		TPNC:          product.TPNC,
		Name:          product.Name,
		Brand:         product.Brand.String,
		Description:   product.Description.String,
		ImageURL:      product.ImageURL.String,
		ProductURL:    product.ProductURL.String,
		UnitPrice:     nullFloat(product.UnitPrice),
		UnitOfMeasure: product.UnitOfMeasure.String,
		Active:        product.Active,
	}
	if product.LastScrapedAt.Valid {
		data.LastScraped = product.LastScrapedAt.Time.In(s.loc).Format("2006-01-02 15:04")
	}

	history, err := s.store.GetPriceHistory(tpnc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	obs := make([]series.Observation, 0, len(history))
	for _, rec := range history {
		obs = append(obs, series.Observation{
			CapturedAt:    rec.CapturedAt,
			ActualPrice:   nullFloat(rec.ActualPrice),
			ClubcardPrice: nullFloat(rec.ClubcardPrice),
		})
	}

	prices, stats := series.Reconstruct(obs, s.loc, time.Now())
	data.Payload = series.BuildPayload(prices, series.ApplyLive(stats, 0))
	data.HasData = len(prices) > 0
	data.TrendClass = trendClass(stats.TrendAbsolute)

	// Newest change first. History rows exist only where something changed,
	// so this doubles as the promotion log.
	for i := len(history) - 1; i >= 0 && len(data.Changes) < maxChangeRows; i-- {
		rec := history[i]
		data.Changes = append(data.Changes, PriceChangeRow{
			CapturedAt:    rec.CapturedAt,
			ActualPrice:   nullFloat(rec.ActualPrice),
			ClubcardPrice: nullFloat(rec.ClubcardPrice),
			IsPromotion:   rec.IsPromotion,
			PromoDesc:     rec.PromoDesc.String,
		})
	}

	if err := s.tmpl.ExecuteTemplate(w, "product.html", data); err != nil {
		log.Printf("api: render product %s: %v", tpnc, err)
	}
}

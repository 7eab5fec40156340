package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"pricewatch/internal/metrics"
	"pricewatch/internal/store"
)

// Notifier receives price observations the moment they are accepted into
// history. The live hub implements it; a nil notifier is fine.
type Notifier interface {
	PriceObserved(tpnc string, actual, clubcard *float64)
}

// Scraper walks the product catalog and records price changes.
type Scraper struct {
	store     *store.Store
	feed      *Client
	sitemaps  *SitemapClient
	indexURL  string
	freshness time.Duration
	workers   int
	loc       *time.Location
	notifier  Notifier
}

func NewScraper(st *store.Store, feed *Client, sitemaps *SitemapClient, indexURL string, freshness time.Duration, workers int) *Scraper {
	return &Scraper{
		store:     st,
		feed:      feed,
		sitemaps:  sitemaps,
		indexURL:  indexURL,
		freshness: freshness,
		workers:   workers,
		loc:       st.Location(),
	}
}

// SetNotifier registers a sink for accepted observations. Call before the
// first run.
func (s *Scraper) SetNotifier(n Notifier) {
	s.notifier = n
}

// RunFull discovers the catalog from the sitemaps and scrapes it.
func (s *Scraper) RunFull(ctx context.Context, triggeredBy string) (*store.ScrapeRun, error) {
	tpncs, err := s.sitemaps.DiscoverTPNCs(s.indexURL)
	if err != nil {
		return nil, fmt.Errorf("discover products: %w", err)
	}
	log.Printf("scraper: %d products in catalog", len(tpncs))
	return s.scrape(ctx, tpncs, false, triggeredBy)
}

// ScrapeItems scrapes specific products, bypassing the freshness check when
// forced.
func (s *Scraper) ScrapeItems(ctx context.Context, tpncs []string, force bool, triggeredBy string) (*store.ScrapeRun, error) {
	return s.scrape(ctx, tpncs, force, triggeredBy)
}

func (s *Scraper) scrape(ctx context.Context, tpncs []string, force bool, triggeredBy string) (*store.ScrapeRun, error) {
	run, err := s.store.StartScrapeRun(triggeredBy)
	if err != nil {
		return nil, fmt.Errorf("start scrape run: %w", err)
	}
	start := time.Now()

	lastScraped := map[string]time.Time{}
	if !force {
		if lastScraped, err = s.store.LastScraped(); err != nil {
			run.Status = "failed"
			run.Notes = sql.NullString{String: err.Error(), Valid: true}
			if cerr := s.store.CompleteScrapeRun(run); cerr != nil {
				log.Printf("scraper: complete run %d: %v", run.ID, cerr)
			}
			return run, fmt.Errorf("load scrape times: %w", err)
		}
	}

	// A product can appear in more than one sitemap; process each id once.
	unique := make([]string, 0, len(tpncs))
	dedupe := make(map[string]struct{}, len(tpncs))
	for _, tpnc := range tpncs {
		if _, dup := dedupe[tpnc]; dup {
			continue
		}
		dedupe[tpnc] = struct{}{}
		unique = append(unique, tpnc)
	}

	var (
		mu            sync.Mutex
		productsSeen  int
		productsNew   int
		pricesChanged int
		errCount      int
	)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tpnc := range jobs {
				res := s.processProduct(tpnc, lastScraped)
				mu.Lock()
				if res.err != nil {
					errCount++
					log.Printf("scraper: %s: %v", tpnc, res.err)
				} else if !res.skipped {
					productsSeen++
					if res.isNew {
						productsNew++
					}
					if res.changed {
						pricesChanged++
					}
				}
				mu.Unlock()
			}
		}()
	}

queue:
	for _, tpnc := range unique {
		select {
		case <-ctx.Done():
			break queue
		case jobs <- tpnc:
		}
	}
	close(jobs)
	wg.Wait()

	run.ProductsSeen = productsSeen
	run.ProductsNew = productsNew
	run.PricesChanged = pricesChanged
	run.Errors = errCount
	if err := ctx.Err(); err != nil {
		run.Status = "failed"
		run.Notes = sql.NullString{String: "interrupted: " + err.Error(), Valid: true}
	}
	if err := s.store.CompleteScrapeRun(run); err != nil {
		return run, fmt.Errorf("complete scrape run: %w", err)
	}

	metrics.ScrapeRunDuration.Observe(time.Since(start).Seconds())
	log.Printf("scraper: run %d %s in %s: %d seen, %d new, %d price changes, %d errors",
		run.ID, run.Status, time.Since(start).Round(time.Second), productsSeen, productsNew, pricesChanged, errCount)
	return run, nil
}

type processResult struct {
	skipped bool
	isNew   bool
	changed bool
	err     error
}

func (s *Scraper) processProduct(tpnc string, lastScraped map[string]time.Time) processResult {
	prod, err := s.store.GetProduct(tpnc)
	if err != nil {
		return processResult{err: fmt.Errorf("load product: %w", err)}
	}
	exists := prod != nil

	if exists {
		if at, ok := lastScraped[tpnc]; ok && time.Since(at) < s.freshness {
			return processResult{skipped: true}
		}
	}

	var (
		feedProd *FeedProduct
		raw      string
	)
	if exists {
		feedProd, raw, err = s.feed.FetchPrice(tpnc)
	} else {
		feedProd, raw, err = s.feed.FetchProduct(tpnc)
	}
	if err != nil {
		return processResult{err: fmt.Errorf("fetch: %w", err)}
	}

	if feedProd == nil {
		if exists {
			if err := s.store.SetProductActive(tpnc, false); err != nil {
				return processResult{err: fmt.Errorf("deactivate: %w", err)}
			}
			log.Printf("scraper: %s gone from feed, marked inactive", tpnc)
		}
		return processResult{skipped: true}
	}

	if feedProd.Price == nil {
		// Listed but currently priceless, usually out of stock. Leave
		// last_scraped_at alone so the next run tries again.
		return processResult{skipped: true}
	}

	now := time.Now().In(s.loc)

	if !exists {
		if err := s.store.UpsertProduct(productFrom(tpnc, feedProd)); err != nil {
			return processResult{err: fmt.Errorf("upsert product: %w", err)}
		}
		metrics.ProductsDiscovered.Inc()
	} else if !prod.Active {
		if err := s.store.SetProductActive(tpnc, true); err != nil {
			return processResult{err: fmt.Errorf("reactivate: %w", err)}
		}
	}

	rec := priceRecordFrom(tpnc, feedProd, now, raw)
	if rec.QCStatus != 0 {
		log.Printf("scraper: %s quality flags: %v", tpnc, QCNames(rec.QCStatus))
	}

	inserted, err := s.store.InsertPrice(rec)
	if err != nil {
		return processResult{err: fmt.Errorf("insert price: %w", err)}
	}
	if err := s.store.TouchProductScraped(tpnc, !exists, now); err != nil {
		return processResult{err: fmt.Errorf("touch product: %w", err)}
	}

	if inserted {
		reason := "price_change"
		if !exists {
			reason = "new_product"
		}
		metrics.PricesRecorded.WithLabelValues(reason).Inc()
		if s.notifier != nil {
			s.notifier.PriceObserved(tpnc, nullableFloat(rec.ActualPrice), nullableFloat(rec.ClubcardPrice))
		}
	}

	return processResult{isNew: !exists, changed: inserted}
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pricewatch/internal/httputil"
	"pricewatch/internal/metrics"
)

// SitemapClient walks the retailer's sitemap index to enumerate the product
// catalog. Product ids are the trailing number in urls like
// https://bevasarlas.tesco.hu/groceries/hu-HU/products/105018735.
type SitemapClient struct {
	userAgent string
	client    *http.Client
}

func NewSitemapClient(userAgent string) *SitemapClient {
	return &SitemapClient{
		userAgent: userAgent,
		client:    httputil.NewClient(60 * time.Second),
	}
}

type sitemapIndex struct {
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type urlSet struct {
	URLs []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc string `xml:"loc"`
}

var productIDRe = regexp.MustCompile(`/products/(\d+)`)

// DiscoverTPNCs fetches the sitemap index, then every product sitemap it
// lists, and returns the product ids deduplicated in first-seen order. A
// single unreadable sitemap is skipped rather than failing the whole
// discovery.
func (c *SitemapClient) DiscoverTPNCs(indexURL string) ([]string, error) {
	body, err := c.get(indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch sitemap index: %w", err)
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err != nil {
		return nil, fmt.Errorf("parse sitemap index: %w", err)
	}

	var (
		ids  []string
		seen = make(map[string]struct{})
	)
	for _, sm := range index.Sitemaps {
		body, err := c.get(sm.Loc)
		if err != nil {
			log.Printf("sitemap: skipping %s: %v", sm.Loc, err)
			continue
		}
		var set urlSet
		if err := xml.Unmarshal(body, &set); err != nil {
			log.Printf("sitemap: skipping %s: %v", sm.Loc, err)
			continue
		}

		found := 0
		for _, u := range set.URLs {
			m := productIDRe.FindStringSubmatch(u.Loc)
			if m == nil {
				continue
			}
			if _, dup := seen[m[1]]; dup {
				continue
			}
			seen[m[1]] = struct{}{}
			ids = append(ids, m[1])
			found++
		}
		log.Printf("sitemap: %d products in %s", found, sm.Loc)
	}
	return ids, nil
}

func (c *SitemapClient) get(url string) ([]byte, error) {
	start := time.Now()
	var body []byte
	operation := func() error {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch sitemap: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch sitemap: status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	err := backoff.Retry(operation, bo)
	metrics.FeedLatency.WithLabelValues("sitemap").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedCallsTotal.WithLabelValues("sitemap", "error").Inc()
		return nil, err
	}
	metrics.FeedCallsTotal.WithLabelValues("sitemap", "ok").Inc()
	return body, nil
}

package ingest

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"pricewatch/internal/htmlutil"
	"pricewatch/internal/httputil"
	"pricewatch/internal/metrics"
	"pricewatch/internal/models"
)

// capturedAtFormat matches what the feed scraper has always written: local
// wall-clock time with microseconds and no offset.
const capturedAtFormat = "2006-01-02T15:04:05.000000"

const productURLFormat = "https://bevasarlas.tesco.hu/groceries/hu-HU/products/%s"

type Client struct {
	url       string
	apiKey    string
	region    string
	language  string
	userAgent string
	client    *http.Client
}

type ClientConfig struct {
	URL       string
	APIKey    string
	Region    string
	Language  string
	UserAgent string
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		url:       cfg.URL,
		apiKey:    cfg.APIKey,
		region:    cfg.Region,
		language:  cfg.Language,
		userAgent: cfg.UserAgent,
		client:    httputil.NewClient(httputil.DefaultTimeout),
	}
}

// FetchProduct runs the full product document: static details plus price and
// promotions. Used the first time a product is seen.
func (c *Client) FetchProduct(tpnc string) (*FeedProduct, string, error) {
	return c.fetch(tpnc, "GetProduct", fullProductQuery, "product")
}

// FetchPrice runs the price-only document for products whose static details
// are already stored.
func (c *Client) FetchPrice(tpnc string) (*FeedProduct, string, error) {
	return c.fetch(tpnc, "GetProductPrice", priceOnlyQuery, "price")
}

// fetch posts a single-operation batch and returns the product along with
// the raw response body. A nil product with nil error means the feed does
// not know the tpnc.
func (c *Client) fetch(tpnc, operationName, query, endpoint string) (*FeedProduct, string, error) {
	reqBody, err := json.Marshal([]graphQLRequest{{
		OperationName: operationName,
		Variables:     requestVariables{TPNC: tpnc},
		Extensions:    requestExtensions{MFEName: "mfe-pdp"},
		Query:         query,
	}})
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	var body []byte
	operation := func() error {
		req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("region", c.region)
		req.Header.Set("language", c.language)
		req.Header.Set("x-apikey", c.apiKey)
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", tpnc, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", tpnc, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	err = backoff.Retry(operation, bo)
	metrics.FeedLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FeedCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, "", err
	}
	metrics.FeedCallsTotal.WithLabelValues(endpoint, "ok").Inc()

	var responses []graphQLResponse
	if err := json.Unmarshal(body, &responses); err != nil {
		return nil, "", fmt.Errorf("unmarshal: %w", err)
	}
	if len(responses) == 0 {
		return nil, "", fmt.Errorf("empty response for %s", tpnc)
	}
	first := responses[0]
	if len(first.Errors) > 0 {
		return nil, "", fmt.Errorf("feed error for %s: %s", tpnc, first.Errors[0].Message)
	}
	return first.Data.Product, string(body), nil
}

// priceRecordFrom flattens a feed product into a price history row stamped
// with the capture time.
func priceRecordFrom(tpnc string, p *FeedProduct, capturedAt time.Time, rawJSON string) models.PriceRecord {
	rec := models.PriceRecord{
		TPNC:       tpnc,
		CapturedAt: capturedAt.Format(capturedAtFormat),
		RawJSON:    rawJSON,
	}

	var actual *float64
	if p.Price != nil {
		actual = p.Price.Actual
	}
	if actual != nil {
		rec.ActualPrice = sql.NullFloat64{Float64: *actual, Valid: true}
	}

	clubcard, isPromo, desc := pricingFromPromotions(p.Promotions, actual)
	if clubcard != nil {
		rec.ClubcardPrice = sql.NullFloat64{Float64: *clubcard, Valid: true}
	}
	rec.IsPromotion = isPromo
	if desc != nil {
		rec.PromoDesc = sql.NullString{String: *desc, Valid: true}
	}

	rec.QCStatus = ValidatePrice(rec)
	return rec
}

// productFrom builds the static product row from a full-query response.
func productFrom(tpnc string, p *FeedProduct) models.Product {
	prod := models.Product{
		TPNC:       tpnc,
		Name:       p.Title,
		ProductURL: sql.NullString{String: fmt.Sprintf(productURLFormat, tpnc), Valid: true},
		Active:     true,
	}
	if p.BrandName != nil {
		prod.Brand = sql.NullString{String: *p.BrandName, Valid: true}
	}
	if p.Description != nil {
		// Descriptions arrive as plain text or HTML depending on the listing.
		if text := htmlutil.ToText(*p.Description); text != "" {
			prod.Description = sql.NullString{String: text, Valid: true}
		}
	}
	if p.DefaultImageURL != nil {
		prod.ImageURL = sql.NullString{String: *p.DefaultImageURL, Valid: true}
	}
	if p.Price != nil {
		if p.Price.UnitPrice != nil {
			prod.UnitPrice = sql.NullFloat64{Float64: *p.Price.UnitPrice, Valid: true}
		}
		if p.Price.UnitOfMeasure != nil {
			prod.UnitOfMeasure = sql.NullString{String: *p.Price.UnitOfMeasure, Valid: true}
		}
	}
	return prod
}

// pricingFromPromotions picks the promotion that matters for pricing. A
// CLUBCARD_PRICING promotion wins outright; its afterDiscount is sometimes
// missing or repeats the shelf price, in which case the amount in the
// description is the better source. Other promotions only contribute
// metadata, since their cut already shows in the actual price.
func pricingFromPromotions(promos []FeedPromotion, actual *float64) (clubcard *float64, isPromo bool, desc *string) {
	for _, p := range promos {
		if slices.Contains(p.Attributes, "CLUBCARD_PRICING") {
			isPromo = true
			desc = p.Description
			if p.Price != nil && p.Price.AfterDiscount != nil {
				clubcard = p.Price.AfterDiscount
			}
			if parsed, ok := promoDescPrice(p.Description); ok {
				if clubcard == nil || (actual != nil && *clubcard == *actual) {
					clubcard = &parsed
				}
			}
			return clubcard, isPromo, desc
		}
		if !isPromo {
			isPromo = true
			desc = p.Description
		}
	}
	return clubcard, isPromo, desc
}

var promoDescPriceRe = regexp.MustCompile(`(?i)(\d+)Ft`)

// promoDescPrice pulls a forint amount out of promotion text like
// "449 Ft Clubcarddal" or "1 299 Ft Clubcarddal". Thousands groups are
// separated by regular or non-breaking spaces, so both are stripped before
// matching.
func promoDescPrice(desc *string) (float64, bool) {
	if desc == nil {
		return 0, false
	}
	clean := strings.NewReplacer(" ", "", " ", "").Replace(*desc)
	m := promoDescPriceRe.FindStringSubmatch(clean)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

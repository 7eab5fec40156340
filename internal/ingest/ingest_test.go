package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"pricewatch/internal/models"
	"pricewatch/internal/store"
)

func nf(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fp(v float64) *float64 {
	return &v
}

func sp(v string) *string {
	return &v
}

func TestValidatePrice(t *testing.T) {
	tests := []struct {
		name string
		rec  models.PriceRecord
		want int
	}{
		{
			name: "plain row - no flags",
			rec:  models.PriceRecord{ActualPrice: nf(399)},
			want: 0,
		},
		{
			name: "clubcard discount - no flags",
			rec:  models.PriceRecord{ActualPrice: nf(399), ClubcardPrice: nf(349)},
			want: 0,
		},
		{
			name: "missing actual",
			rec:  models.PriceRecord{},
			want: QCActualMissing,
		},
		{
			name: "negative actual",
			rec:  models.PriceRecord{ActualPrice: nf(-5)},
			want: QCActualNegative,
		},
		{
			name: "implausibly high actual",
			rec:  models.PriceRecord{ActualPrice: nf(6_000_000)},
			want: QCActualImplausible,
		},
		{
			name: "actual at plausibility boundary - valid",
			rec:  models.PriceRecord{ActualPrice: nf(5_000_000)},
			want: 0,
		},
		{
			name: "negative clubcard",
			rec:  models.PriceRecord{ActualPrice: nf(399), ClubcardPrice: nf(-1)},
			want: QCClubcardNegative,
		},
		{
			name: "clubcard above actual",
			rec:  models.PriceRecord{ActualPrice: nf(399), ClubcardPrice: nf(449)},
			want: QCClubcardNotBelowActual,
		},
		{
			name: "clubcard equal to actual is suspect",
			rec:  models.PriceRecord{ActualPrice: nf(399), ClubcardPrice: nf(399)},
			want: QCClubcardNotBelowActual,
		},
		{
			name: "clubcard without actual",
			rec:  models.PriceRecord{ClubcardPrice: nf(349)},
			want: QCActualMissing,
		},
		{
			name: "multiple flags",
			rec:  models.PriceRecord{ActualPrice: nf(-5), ClubcardPrice: nf(-1)},
			want: QCActualNegative | QCClubcardNegative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidatePrice(tt.rec); got != tt.want {
				t.Errorf("ValidatePrice() = %v, want %v", QCNames(got), QCNames(tt.want))
			}
		})
	}
}

func TestQCNames(t *testing.T) {
	if got := QCNames(0); got != nil {
		t.Errorf("QCNames(0) = %v, want nil", got)
	}
	got := QCNames(QCActualNegative | QCClubcardNotBelowActual)
	want := []string{"actual_negative", "clubcard_not_below_actual"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("QCNames() = %v, want %v", got, want)
	}
}

func TestParseFeedResponse(t *testing.T) {
	tests := []struct {
		name     string
		jsonData string
		wantErr  bool
		check    func(t *testing.T, resp graphQLResponse)
	}{
		{
			name: "full product with clubcard promotion",
			jsonData: `[{
				"data": {
					"product": {
						"id": "205647000",
						"title": "Mizo tej 2,8% 1l",
						"brandName": "Mizo",
						"defaultImageUrl": "https://digitalcontent.api.tesco.com/v2/media/marketing/205647000.jpeg",
						"price": {
							"actual": 399,
							"unitPrice": 399,
							"unitOfMeasure": "l"
						},
						"promotions": [{
							"id": "promo-1",
							"startDate": "2025-01-08T00:00:00Z",
							"endDate": "2025-01-21T23:59:59Z",
							"description": "349 Ft Clubcarddal",
							"attributes": ["CLUBCARD_PRICING"],
							"price": {"afterDiscount": 349}
						}]
					}
				}
			}]`,
			check: func(t *testing.T, resp graphQLResponse) {
				p := resp.Data.Product
				if p == nil {
					t.Fatal("product is nil")
				}
				if p.Title != "Mizo tej 2,8% 1l" {
					t.Errorf("Title = %q", p.Title)
				}
				if p.BrandName == nil || *p.BrandName != "Mizo" {
					t.Errorf("BrandName = %v, want Mizo", p.BrandName)
				}
				if p.Price == nil || p.Price.Actual == nil || *p.Price.Actual != 399 {
					t.Error("Price.Actual not parsed")
				}
				if len(p.Promotions) != 1 {
					t.Fatalf("len(Promotions) = %d, want 1", len(p.Promotions))
				}
				promo := p.Promotions[0]
				if promo.Price == nil || promo.Price.AfterDiscount == nil || *promo.Price.AfterDiscount != 349 {
					t.Error("promotion afterDiscount not parsed")
				}
			},
		},
		{
			name: "price-only response with null fields",
			jsonData: `[{
				"data": {
					"product": {
						"id": "301828384",
						"price": {"actual": 1299, "unitPrice": null, "unitOfMeasure": null},
						"promotions": []
					}
				}
			}]`,
			check: func(t *testing.T, resp graphQLResponse) {
				p := resp.Data.Product
				if p == nil {
					t.Fatal("product is nil")
				}
				if p.Title != "" {
					t.Errorf("Title = %q, want empty", p.Title)
				}
				if p.Price.UnitPrice != nil {
					t.Error("UnitPrice should be nil")
				}
			},
		},
		{
			name:     "delisted product",
			jsonData: `[{"data": {"product": null}}]`,
			check: func(t *testing.T, resp graphQLResponse) {
				if resp.Data.Product != nil {
					t.Error("product should be nil")
				}
			},
		},
		{
			name:     "feed error",
			jsonData: `[{"data": {"product": null}, "errors": [{"message": "rate limit exceeded"}]}]`,
			check: func(t *testing.T, resp graphQLResponse) {
				if len(resp.Errors) != 1 || resp.Errors[0].Message != "rate limit exceeded" {
					t.Errorf("Errors = %v", resp.Errors)
				}
			},
		},
		{
			name:     "malformed",
			jsonData: `[{`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var responses []graphQLResponse
			err := json.Unmarshal([]byte(tt.jsonData), &responses)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, responses[0])
			}
		})
	}
}

func TestPromoDescPrice(t *testing.T) {
	tests := []struct {
		name   string
		desc   *string
		want   float64
		wantOK bool
	}{
		{name: "plain", desc: sp("449 Ft Clubcarddal"), want: 449, wantOK: true},
		{name: "thousands with space", desc: sp("1 299 Ft Clubcarddal"), want: 1299, wantOK: true},
		{name: "thousands with nbsp", desc: sp("1 299 Ft Clubcarddal"), want: 1299, wantOK: true},
		{name: "lowercase ft", desc: sp("449 ft Clubcarddal"), want: 449, wantOK: true},
		{name: "percentage promo", desc: sp("25% kedvezmény"), wantOK: false},
		{name: "no amount", desc: sp("Clubcard ár"), wantOK: false},
		{name: "nil description", desc: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := promoDescPrice(tt.desc)
			if ok != tt.wantOK {
				t.Fatalf("promoDescPrice() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("promoDescPrice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPricingFromPromotions(t *testing.T) {
	clubcardPromo := func(desc string, afterDiscount *float64) FeedPromotion {
		p := FeedPromotion{
			ID:          "cc-1",
			Description: sp(desc),
			Attributes:  []string{"CLUBCARD_PRICING"},
		}
		if afterDiscount != nil {
			p.Price = &struct {
				AfterDiscount *float64 `json:"afterDiscount"`
			}{AfterDiscount: afterDiscount}
		}
		return p
	}

	tests := []struct {
		name         string
		promos       []FeedPromotion
		actual       *float64
		wantClubcard *float64
		wantPromo    bool
		wantDesc     *string
	}{
		{
			name:   "no promotions",
			promos: nil,
			actual: fp(399),
		},
		{
			name:         "clubcard with afterDiscount",
			promos:       []FeedPromotion{clubcardPromo("349 Ft Clubcarddal", fp(349))},
			actual:       fp(399),
			wantClubcard: fp(349),
			wantPromo:    true,
			wantDesc:     sp("349 Ft Clubcarddal"),
		},
		{
			name:         "afterDiscount missing, description carries the price",
			promos:       []FeedPromotion{clubcardPromo("349 Ft Clubcarddal", nil)},
			actual:       fp(399),
			wantClubcard: fp(349),
			wantPromo:    true,
			wantDesc:     sp("349 Ft Clubcarddal"),
		},
		{
			name:         "afterDiscount repeats shelf price, description wins",
			promos:       []FeedPromotion{clubcardPromo("349 Ft Clubcarddal", fp(399))},
			actual:       fp(399),
			wantClubcard: fp(349),
			wantPromo:    true,
			wantDesc:     sp("349 Ft Clubcarddal"),
		},
		{
			name:         "afterDiscount repeats shelf price, description unparseable",
			promos:       []FeedPromotion{clubcardPromo("Clubcard ár", fp(399))},
			actual:       fp(399),
			wantClubcard: fp(399), // nothing better to go on
			wantPromo:    true,
			wantDesc:     sp("Clubcard ár"),
		},
		{
			name: "plain promotion contributes metadata only",
			promos: []FeedPromotion{{
				ID:          "sale-1",
				Description: sp("Akció: 25% kedvezmény"),
				Attributes:  []string{"PRICE_CUT"},
			}},
			actual:    fp(299),
			wantPromo: true,
			wantDesc:  sp("Akció: 25% kedvezmény"),
		},
		{
			name: "clubcard promotion wins over an earlier plain one",
			promos: []FeedPromotion{
				{ID: "sale-1", Description: sp("Akció"), Attributes: []string{"PRICE_CUT"}},
				clubcardPromo("349 Ft Clubcarddal", fp(349)),
			},
			actual:       fp(399),
			wantClubcard: fp(349),
			wantPromo:    true,
			wantDesc:     sp("349 Ft Clubcarddal"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clubcard, isPromo, desc := pricingFromPromotions(tt.promos, tt.actual)
			if isPromo != tt.wantPromo {
				t.Errorf("isPromo = %v, want %v", isPromo, tt.wantPromo)
			}
			switch {
			case tt.wantClubcard == nil && clubcard != nil:
				t.Errorf("clubcard = %v, want nil", *clubcard)
			case tt.wantClubcard != nil && clubcard == nil:
				t.Errorf("clubcard = nil, want %v", *tt.wantClubcard)
			case tt.wantClubcard != nil && *clubcard != *tt.wantClubcard:
				t.Errorf("clubcard = %v, want %v", *clubcard, *tt.wantClubcard)
			}
			switch {
			case tt.wantDesc == nil && desc != nil:
				t.Errorf("desc = %q, want nil", *desc)
			case tt.wantDesc != nil && (desc == nil || *desc != *tt.wantDesc):
				t.Errorf("desc = %v, want %q", desc, *tt.wantDesc)
			}
		})
	}
}

func TestPriceRecordFrom(t *testing.T) {
	product := &FeedProduct{
		ID:    "205647000",
		Title: "Mizo tej 2,8% 1l",
		Price: &FeedPrice{Actual: fp(399), UnitPrice: fp(399), UnitOfMeasure: sp("l")},
		Promotions: []FeedPromotion{{
			ID:          "cc-1",
			Description: sp("349 Ft Clubcarddal"),
			Attributes:  []string{"CLUBCARD_PRICING"},
			Price: &struct {
				AfterDiscount *float64 `json:"afterDiscount"`
			}{AfterDiscount: fp(349)},
		}},
	}

	capturedAt := time.Date(2025, 1, 15, 8, 30, 12, 481920000, time.UTC)
	rec := priceRecordFrom("205647000", product, capturedAt, `[{"data":{}}]`)

	if rec.TPNC != "205647000" {
		t.Errorf("TPNC = %q", rec.TPNC)
	}
	if rec.CapturedAt != "2025-01-15T08:30:12.481920" {
		t.Errorf("CapturedAt = %q, want 2025-01-15T08:30:12.481920", rec.CapturedAt)
	}
	if !rec.ActualPrice.Valid || rec.ActualPrice.Float64 != 399 {
		t.Errorf("ActualPrice = %v, want 399", rec.ActualPrice)
	}
	if !rec.ClubcardPrice.Valid || rec.ClubcardPrice.Float64 != 349 {
		t.Errorf("ClubcardPrice = %v, want 349", rec.ClubcardPrice)
	}
	if !rec.IsPromotion {
		t.Error("IsPromotion = false, want true")
	}
	if !rec.PromoDesc.Valid || rec.PromoDesc.String != "349 Ft Clubcarddal" {
		t.Errorf("PromoDesc = %v", rec.PromoDesc)
	}
	if rec.QCStatus != 0 {
		t.Errorf("QCStatus = %v, want clean", QCNames(rec.QCStatus))
	}
	if rec.RawJSON == "" {
		t.Error("RawJSON not carried")
	}
}

func TestProductFrom(t *testing.T) {
	product := &FeedProduct{
		ID:              "205647000",
		Title:           "Mizo tej 2,8% 1l",
		BrandName:       sp("Mizo"),
		Description:     sp("Friss félzsíros tej"),
		DefaultImageURL: sp("https://digitalcontent.api.tesco.com/v2/media/205647000.jpeg"),
		Price:           &FeedPrice{Actual: fp(399), UnitPrice: fp(399), UnitOfMeasure: sp("l")},
	}

	prod := productFrom("205647000", product)

	if prod.TPNC != "205647000" || prod.Name != "Mizo tej 2,8% 1l" {
		t.Errorf("identity fields wrong: %+v", prod)
	}
	if !prod.Brand.Valid || prod.Brand.String != "Mizo" {
		t.Errorf("Brand = %v", prod.Brand)
	}
	if !prod.UnitPrice.Valid || prod.UnitPrice.Float64 != 399 {
		t.Errorf("UnitPrice = %v", prod.UnitPrice)
	}
	if !prod.UnitOfMeasure.Valid || prod.UnitOfMeasure.String != "l" {
		t.Errorf("UnitOfMeasure = %v", prod.UnitOfMeasure)
	}
	wantURL := "https://bevasarlas.tesco.hu/groceries/hu-HU/products/205647000"
	if !prod.ProductURL.Valid || prod.ProductURL.String != wantURL {
		t.Errorf("ProductURL = %v, want %s", prod.ProductURL, wantURL)
	}
	if !prod.Active {
		t.Error("new products should be active")
	}
}

// feedHandler serves a canned GraphQL response and records what it was asked.
type feedHandler struct {
	mu       sync.Mutex
	requests []graphQLRequest
	respond  func(w http.ResponseWriter, req graphQLRequest)
}

func (h *feedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var batch []graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil || len(batch) != 1 {
		http.Error(w, "bad batch", http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.requests = append(h.requests, batch[0])
	h.mu.Unlock()
	h.respond(w, batch[0])
}

func productJSON(tpnc, title string, actual float64) string {
	return fmt.Sprintf(`[{
		"data": {
			"product": {
				"id": %q,
				"title": %q,
				"brandName": "Mizo",
				"price": {"actual": %g, "unitPrice": %g, "unitOfMeasure": "l"},
				"promotions": [{
					"id": "cc-1",
					"description": "349 Ft Clubcarddal",
					"attributes": ["CLUBCARD_PRICING"],
					"price": {"afterDiscount": 349}
				}]
			}
		}
	}]`, tpnc, title, actual, actual)
}

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		URL:       url,
		APIKey:    "test-key",
		Region:    "HU",
		Language:  "hu-HU",
		UserAgent: "pricewatch-test",
	})
}

func TestFetchPrice(t *testing.T) {
	handler := &feedHandler{respond: func(w http.ResponseWriter, req graphQLRequest) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, productJSON(req.Variables.TPNC, "Mizo tej 2,8% 1l", 399))
	}}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := newTestClient(srv.URL)
	product, raw, err := client.FetchPrice("205647000")
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if product == nil || product.ID != "205647000" {
		t.Fatalf("product = %+v", product)
	}
	if product.Price == nil || *product.Price.Actual != 399 {
		t.Error("price not parsed")
	}
	if raw == "" {
		t.Error("raw body not returned")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(handler.requests))
	}
	req := handler.requests[0]
	if req.OperationName != "GetProductPrice" {
		t.Errorf("OperationName = %q, want GetProductPrice", req.OperationName)
	}
	if req.Variables.TPNC != "205647000" {
		t.Errorf("Variables.TPNC = %q", req.Variables.TPNC)
	}
	if req.Query != priceOnlyQuery {
		t.Error("price-only document not sent")
	}
}

func TestFetchProduct_SendsHeaders(t *testing.T) {
	var gotHeaders http.Header
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		fmt.Fprint(w, productJSON("205647000", "Tej", 399))
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, _, err := client.FetchProduct("205647000"); err != nil {
		t.Fatalf("FetchProduct: %v", err)
	}

	for header, want := range map[string]string{
		"X-Apikey":   "test-key",
		"Region":     "HU",
		"Language":   "hu-HU",
		"User-Agent": "pricewatch-test",
	} {
		if got := gotHeaders.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestFetch_UnknownProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"data": {"product": null}}]`)
	}))
	defer srv.Close()

	product, _, err := newTestClient(srv.URL).FetchPrice("999999999")
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if product != nil {
		t.Errorf("product = %+v, want nil", product)
	}
}

func TestFetch_FeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"data": {"product": null}, "errors": [{"message": "boom"}]}]`)
	}))
	defer srv.Close()

	if _, _, err := newTestClient(srv.URL).FetchPrice("205647000"); err == nil {
		t.Fatal("expected error when the feed reports errors")
	}
}

func TestFetch_RetriesRateLimit(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, productJSON("205647000", "Tej", 399))
	}))
	defer srv.Close()

	product, _, err := newTestClient(srv.URL).FetchPrice("205647000")
	if err != nil {
		t.Fatalf("FetchPrice after retry: %v", err)
	}
	if product == nil {
		t.Fatal("product = nil after retry")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFetch_ServerErrorIsPermanent(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, _, err := newTestClient(srv.URL).FetchPrice("205647000"); err == nil {
		t.Fatal("expected error on 500")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on server error)", calls)
	}
}

func TestDiscoverTPNCs(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/products-index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/products-1.xml</loc></sitemap>
  <sitemap><loc>%s/products-2.xml</loc></sitemap>
</sitemapindex>`, base, base)
	})
	mux.HandleFunc("/products-1.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://bevasarlas.tesco.hu/groceries/hu-HU/products/105018735</loc></url>
  <url><loc>https://bevasarlas.tesco.hu/groceries/hu-HU/products/205647000</loc></url>
  <url><loc>https://bevasarlas.tesco.hu/groceries/hu-HU/categories/tej</loc></url>
</urlset>`)
	})
	mux.HandleFunc("/products-2.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://bevasarlas.tesco.hu/groceries/hu-HU/products/205647000</loc></url>
  <url><loc>https://bevasarlas.tesco.hu/groceries/hu-HU/products/301828384</loc></url>
</urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	ids, err := NewSitemapClient("pricewatch-test").DiscoverTPNCs(srv.URL + "/products-index.xml")
	if err != nil {
		t.Fatalf("DiscoverTPNCs: %v", err)
	}

	// 205647000 appears in both sitemaps; first-seen order is kept.
	want := []string{"105018735", "205647000", "301828384"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("DiscoverTPNCs = %v, want %v", ids, want)
	}
}

func TestDiscoverTPNCs_SkipsBrokenSitemap(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/products-index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<sitemapindex>
  <sitemap><loc>%s/broken.xml</loc></sitemap>
  <sitemap><loc>%s/products-1.xml</loc></sitemap>
</sitemapindex>`, base, base)
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	})
	mux.HandleFunc("/products-1.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset>
  <url><loc>https://bevasarlas.tesco.hu/groceries/hu-HU/products/105018735</loc></url>
</urlset>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	base = srv.URL

	ids, err := NewSitemapClient("pricewatch-test").DiscoverTPNCs(srv.URL + "/products-index.xml")
	if err != nil {
		t.Fatalf("DiscoverTPNCs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"105018735"}) {
		t.Errorf("DiscoverTPNCs = %v, want only the readable sitemap's ids", ids)
	}
}

func setupScraperStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	loc, err := time.LoadLocation("Europe/Budapest")
	if err != nil {
		t.Fatalf("load timezone: %v", err)
	}
	st := store.New(db, loc)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *captureNotifier) PriceObserved(tpnc string, actual, clubcard *float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, tpnc)
}

func TestScrapeItems(t *testing.T) {
	handler := &feedHandler{respond: func(w http.ResponseWriter, req graphQLRequest) {
		fmt.Fprint(w, productJSON(req.Variables.TPNC, "Mizo tej 2,8% 1l", 399))
	}}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	st := setupScraperStore(t)
	scraper := NewScraper(st, newTestClient(srv.URL), NewSitemapClient("pricewatch-test"), "", 12*time.Hour, 2)
	notifier := &captureNotifier{}
	scraper.SetNotifier(notifier)

	run, err := scraper.ScrapeItems(context.Background(), []string{"205647000"}, false, "manual")
	if err != nil {
		t.Fatalf("ScrapeItems: %v", err)
	}
	if run.Status != "completed" {
		t.Errorf("run status = %q, want completed", run.Status)
	}
	if run.ProductsSeen != 1 || run.ProductsNew != 1 || run.PricesChanged != 1 || run.Errors != 0 {
		t.Errorf("run totals = seen %d new %d changed %d errors %d",
			run.ProductsSeen, run.ProductsNew, run.PricesChanged, run.Errors)
	}

	// First sighting runs the full document.
	handler.mu.Lock()
	if len(handler.requests) != 1 || handler.requests[0].OperationName != "GetProduct" {
		t.Errorf("first scrape should use the full document, got %+v", handler.requests)
	}
	handler.mu.Unlock()

	prod, err := st.GetProduct("205647000")
	if err != nil || prod == nil {
		t.Fatalf("GetProduct: %v, %v", prod, err)
	}
	if prod.Name != "Mizo tej 2,8% 1l" || !prod.Brand.Valid {
		t.Errorf("product static fields not stored: %+v", prod)
	}

	latest, err := st.LatestPrice("205647000")
	if err != nil || latest == nil {
		t.Fatalf("LatestPrice: %v, %v", latest, err)
	}
	if latest.ActualPrice.Float64 != 399 || latest.ClubcardPrice.Float64 != 349 {
		t.Errorf("price row = %+v", latest)
	}

	notifier.mu.Lock()
	if len(notifier.events) != 1 || notifier.events[0] != "205647000" {
		t.Errorf("notifier events = %v", notifier.events)
	}
	notifier.mu.Unlock()

	// A fresh product is skipped outright.
	run2, err := scraper.ScrapeItems(context.Background(), []string{"205647000"}, false, "manual")
	if err != nil {
		t.Fatalf("second ScrapeItems: %v", err)
	}
	if run2.ProductsSeen != 0 {
		t.Errorf("fresh product was re-scraped: %+v", run2)
	}

	// Forced re-scrape fetches again but the unchanged price adds no row.
	run3, err := scraper.ScrapeItems(context.Background(), []string{"205647000"}, true, "manual")
	if err != nil {
		t.Fatalf("forced ScrapeItems: %v", err)
	}
	if run3.ProductsSeen != 1 || run3.PricesChanged != 0 {
		t.Errorf("forced run totals = %+v", run3)
	}
	handler.mu.Lock()
	if last := handler.requests[len(handler.requests)-1]; last.OperationName != "GetProductPrice" {
		t.Errorf("known product should use the price document, got %q", last.OperationName)
	}
	handler.mu.Unlock()

	rows, err := st.CountPriceRows()
	if err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("price rows = %d, want 1 (unchanged price must not duplicate)", rows)
	}
}

func TestScrapeItems_DelistedProductMarkedInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"data": {"product": null}}]`)
	}))
	defer srv.Close()

	st := setupScraperStore(t)
	if err := st.UpsertProduct(models.Product{TPNC: "205647000", Name: "Tej", Active: true}); err != nil {
		t.Fatal(err)
	}

	scraper := NewScraper(st, newTestClient(srv.URL), NewSitemapClient("pricewatch-test"), "", 12*time.Hour, 1)
	if _, err := scraper.ScrapeItems(context.Background(), []string{"205647000"}, true, "manual"); err != nil {
		t.Fatalf("ScrapeItems: %v", err)
	}

	prod, err := st.GetProduct("205647000")
	if err != nil {
		t.Fatal(err)
	}
	if prod.Active {
		t.Error("delisted product still active")
	}
}

func TestScrapeItems_DuplicateIDsProcessedOnce(t *testing.T) {
	handler := &feedHandler{respond: func(w http.ResponseWriter, req graphQLRequest) {
		fmt.Fprint(w, productJSON(req.Variables.TPNC, "Tej", 399))
	}}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	st := setupScraperStore(t)
	scraper := NewScraper(st, newTestClient(srv.URL), NewSitemapClient("pricewatch-test"), "", 12*time.Hour, 2)

	run, err := scraper.ScrapeItems(context.Background(), []string{"205647000", "205647000", "205647000"}, false, "manual")
	if err != nil {
		t.Fatalf("ScrapeItems: %v", err)
	}
	if run.ProductsSeen != 1 {
		t.Errorf("ProductsSeen = %d, want 1", run.ProductsSeen)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.requests) != 1 {
		t.Errorf("feed calls = %d, want 1", len(handler.requests))
	}
}

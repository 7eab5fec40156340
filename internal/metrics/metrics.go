package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_feed_calls_total",
			Help: "Total product feed API calls",
		},
		[]string{"endpoint", "status"},
	)

	FeedLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_feed_latency_seconds",
			Help:    "Product feed call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	PricesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_prices_recorded_total",
			Help: "Price rows written, labelled by why the row was written",
		},
		[]string{"reason"}, // "new_product", "price_change"
	)

	ProductsDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_products_discovered_total",
			Help: "Products first seen via sitemap discovery",
		},
	)

	ScrapeRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricewatch_scrape_run_duration_seconds",
			Help:    "Wall time of a full catalog scrape pass",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 3600},
		},
	)

	WSClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_ws_clients_connected",
			Help: "WebSocket clients currently subscribed to live prices",
		},
	)
)

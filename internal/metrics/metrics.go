// Package metrics exposes Prometheus collectors for scrape runs and searches.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors on a dedicated registry. All methods are
// safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	Registry         *prometheus.Registry
	RunsTotal        prometheus.Counter
	RetailerOutcomes *prometheus.CounterVec
	RetailerDuration *prometheus.HistogramVec
	ProductsKept     *prometheus.CounterVec
	ProductsDropped  *prometheus.CounterVec
	Searches         *prometheus.CounterVec
	SnapshotAge      prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "supercomparador_runs_total",
			Help: "Total scrape runs started.",
		},
	)
	outcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supercomparador_retailer_scrapes_total",
			Help: "Retailer scrapes by final status.",
		},
		[]string{"retailer", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supercomparador_retailer_scrape_duration_seconds",
			Help:    "Wall time of one retailer scrape.",
			Buckets: []float64{5, 10, 20, 30, 60, 90, 120, 180, 300},
		},
		[]string{"retailer"},
	)
	kept := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supercomparador_products_kept_total",
			Help: "Products that survived normalization.",
		},
		[]string{"retailer"},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supercomparador_products_dropped_total",
			Help: "Products dropped during normalization by reason.",
		},
		[]string{"retailer", "reason"},
	)
	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supercomparador_searches_total",
			Help: "Searches served by result source.",
		},
		[]string{"source"},
	)
	snapshotAge := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supercomparador_snapshot_age_seconds",
			Help: "Age of the loaded snapshot.",
		},
	)

	registry.MustRegister(runs, outcomes, duration, kept, dropped, searches, snapshotAge)

	return &Metrics{
		Registry:         registry,
		RunsTotal:        runs,
		RetailerOutcomes: outcomes,
		RetailerDuration: duration,
		ProductsKept:     kept,
		ProductsDropped:  dropped,
		Searches:         searches,
		SnapshotAge:      snapshotAge,
	}
}

func (m *Metrics) IncRun() {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
}

// ObserveRetailer records the status and duration of one retailer scrape.
func (m *Metrics) ObserveRetailer(retailer, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RetailerOutcomes.WithLabelValues(retailer, status).Inc()
	m.RetailerDuration.WithLabelValues(retailer).Observe(d.Seconds())
}

func (m *Metrics) AddProducts(retailer string, kept, missingName, badPrice int) {
	if m == nil {
		return
	}
	m.ProductsKept.WithLabelValues(retailer).Add(float64(kept))
	m.ProductsDropped.WithLabelValues(retailer, "missing_name").Add(float64(missingName))
	m.ProductsDropped.WithLabelValues(retailer, "bad_price").Add(float64(badPrice))
}

// IncSearch counts a search by where its results came from: snapshot,
// cache, live or none.
func (m *Metrics) IncSearch(source string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(source).Inc()
}

func (m *Metrics) SetSnapshotAge(d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotAge.Set(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

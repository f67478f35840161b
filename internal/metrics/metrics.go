// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal    *prometheus.CounterVec
	candidatesFoundTotal prometheus.Counter
	downloadsTotal       *prometheus.CounterVec
	downloadBytesTotal   prometheus.Counter
	municipalitiesTotal  *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_fetched_total",
				Help: "Total report pages fetched, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		candidatesFoundTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_candidates_found_total",
				Help: "Total candidate report documents discovered.",
			},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_downloads_total",
				Help: "Total document downloads attempted, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		downloadBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_download_bytes_total",
				Help: "Total bytes of report documents written to disk.",
			},
		)

		municipalitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_municipalities_total",
				Help: "Total municipality runs completed, labeled by status.",
			},
			[]string{"status"},
		)
	})
}

// ObservePageFetch records one page fetch with outcome "ok" or "error".
func ObservePageFetch(outcome string) {
	if pagesFetchedTotal != nil {
		pagesFetchedTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveCandidates records discovered candidate documents.
func ObserveCandidates(n int) {
	if candidatesFoundTotal != nil {
		candidatesFoundTotal.Add(float64(n))
	}
}

// ObserveDownload records one download attempt and the bytes written.
func ObserveDownload(outcome string, bytes int) {
	if downloadsTotal != nil {
		downloadsTotal.WithLabelValues(outcome).Inc()
	}
	if downloadBytesTotal != nil && bytes > 0 {
		downloadBytesTotal.Add(float64(bytes))
	}
}

// ObserveMunicipality records one completed municipality run.
func ObserveMunicipality(status string) {
	if municipalitiesTotal != nil {
		municipalitiesTotal.WithLabelValues(status).Inc()
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// IngestTotal считает загрузки по исходу: created, skipped, unreadable, transient, failed
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_ingest_total",
			Help: "Media ingestion attempts by outcome",
		},
		[]string{"outcome"},
	)

	DeriveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_derive_duration_seconds",
			Help:    "Time spent waiting for the derivative worker",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"result"},
	)

	SlotAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_slot_allocations_total",
			Help: "Slot allocation attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReconcileRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_reconcile_removed_total",
			Help: "Orphan records removed by the reconciler",
		},
		[]string{"kind"},
	)
)

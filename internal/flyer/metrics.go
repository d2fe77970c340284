package flyer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flyersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartrecipe_flyers_processed_total",
			Help: "Flyers structured and persisted, by processing method",
		},
		[]string{"method"},
	)

	flyerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartrecipe_flyer_failures_total",
			Help: "Flyer processing failures, by pipeline stage",
		},
		[]string{"stage"},
	)

	dateRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartrecipe_sale_period_repairs_total",
			Help: "Sale periods replaced with the default window because the model returned unusable dates",
		},
	)

	bucketCreations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smartrecipe_bucket_creations_total",
			Help: "Uploads that found the bucket missing and created it",
		},
	)

	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartrecipe_flyer_processing_duration_seconds",
			Help:    "End-to-end flyer processing latency",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"outcome"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reqlog_records_total",
		Help: "Request records by lifecycle outcome",
	}, []string{"outcome"})

	FilterRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reqlog_filter_rejects_total",
		Help: "Requests not recorded, by hook phase and rejecting rule",
	}, []string{"phase", "rule"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reqlog_store_errors_total",
		Help: "Request store failures by operation",
	}, []string{"op"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reqlog_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)

// Record outcomes.
const (
	OutcomeDrafted   = "drafted"
	OutcomeSaved     = "saved"
	OutcomeInvalid   = "invalid"
	OutcomeDiscarded = "discarded"
	OutcomePurged    = "purged"
)

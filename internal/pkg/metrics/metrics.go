package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgergate_dispatch_total",
		Help: "The total number of dispatches per service and outcome",
	}, []string{"service", "status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgergate_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	RateLimitRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgergate_rate_limit_rejects_total",
		Help: "Total requests rejected by the rate limiter",
	})

	ExtractionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgergate_extraction_total",
		Help: "Document extraction attempts by outcome",
	}, []string{"status"})

	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgergate_audit_dropped_total",
		Help: "Audit records dropped because the pipeline was saturated",
	})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgergate_audit_write_failures_total",
		Help: "Audit store writes that failed and were not retried",
	})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Import engine counters and histograms, partitioned by entity type.

var (
	// Dispatcher
	RowsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "dispatch",
		Name:      "requests_total",
		Help:      "Total requests submitted to the remote API",
	}, []string{"entity"})

	RequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "importer",
		Subsystem: "dispatch",
		Name:      "requests_in_flight",
		Help:      "Requests currently awaiting a remote response",
	})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "importer",
		Subsystem: "dispatch",
		Name:      "request_duration_seconds",
		Help:      "Remote call duration per request",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"entity"})

	// Outcomes
	ImportSuccesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "outcome",
		Name:      "successes_total",
		Help:      "Total rows imported successfully",
	}, []string{"entity"})

	ImportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "outcome",
		Name:      "failures_total",
		Help:      "Total rows that failed to import",
	}, []string{"entity"})

	LogWriteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "outcome",
		Name:      "log_write_retries_total",
		Help:      "Total retried writes to the success/failure logs",
	})

	// Address resolution
	AddressCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "address",
		Name:      "cache_hits_total",
		Help:      "Address lookups served from the cache",
	})

	AddressCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "address",
		Name:      "cache_misses_total",
		Help:      "Address lookups that required remote validation",
	})

	AddressRemoteValidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "address",
		Name:      "remote_validations_total",
		Help:      "Remote validate_address calls issued",
	})

	AddressFallbackChecks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "address",
		Name:      "fallback_checks_total",
		Help:      "Local reference-data fallback validations performed",
	})

	ReconciliationMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "importer",
		Subsystem: "outcome",
		Name:      "reconciliation_mismatches_total",
		Help:      "Runs where successes plus failures did not equal submitted rows",
	}, []string{"entity"})
)

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_auth_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // success|invalid|rejected|backend_error
	)

	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_ratelimit_decisions_total",
			Help: "Rate limiter decisions on authentication submissions",
		},
		[]string{"decision"}, // allowed|denied|error
	)

	RowStoreOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinic_rowstore_op_duration_seconds",
			Help:    "Latency of row store calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "result"}, // fetch_rows|fetch_headers|append|update|delete|..., ok|error
	)
)

var registerOnce sync.Once

// MustRegister registers all collectors once; later calls are no-ops.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			AuthAttemptsTotal,
			RateLimitDecisionsTotal,
			RowStoreOpDuration,
		)
	})
}

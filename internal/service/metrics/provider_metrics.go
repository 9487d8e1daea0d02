package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "earnscan",
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Latency of upstream provider calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "op"},
	)

	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earnscan",
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Errors by provider and operation",
		},
		[]string{"provider", "op"},
	)

	ProviderCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "earnscan",
			Subsystem: "provider",
			Name:      "cache_hits_total",
			Help:      "Cache hits by provider and operation",
		},
		[]string{"provider", "op"},
	)

	WinRateBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "earnscan",
			Subsystem: "provider",
			Name:      "winrate_breaker_open",
			Help:      "1 while the win-rate circuit breaker is open",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ProviderLatency, ProviderErrors, ProviderCacheHits, WinRateBreakerState)
	})
}

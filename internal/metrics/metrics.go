package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AddressesProcessed *prometheus.CounterVec
	LookupErrors       prometheus.Counter
	MethodSeconds      *prometheus.HistogramVec
	MethodAccepted     *prometheus.CounterVec
	CacheHits          prometheus.Counter
	ActiveWorkers      prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		AddressesProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "resolution_addresses_processed_total",
			Help: "Total number of processed addresses by outcome.",
		}, []string{"status"}),
		LookupErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "resolution_lookup_api_errors_total",
			Help: "Total number of errors received from the lookup API.",
		}),
		MethodSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resolution_method_duration_seconds",
			Help:    "Duration of individual search method attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		MethodAccepted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "resolution_method_accepted_total",
			Help: "Total number of resolutions accepted, by search method.",
		}, []string{"method"}),
		CacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "resolution_cache_hits_total",
			Help: "Total number of addresses answered from the resolution cache.",
		}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "resolution_active_workers",
			Help: "Current number of active workers processing addresses.",
		}),
	}
}

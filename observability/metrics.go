package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts engine operations segmented by outcome so operators
// can watch mint, open and claim traffic without scraping logs.
type EngineMetrics struct {
	Mints  *prometheus.CounterVec
	Opens  *prometheus.CounterVec
	Claims *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Metrics returns the lazily-initialised engine metrics registered on the
// default prometheus registry.
func Metrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			Mints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "boxchain",
				Subsystem: "engine",
				Name:      "mints_total",
				Help:      "Box mint invocations segmented by outcome.",
			}, []string{"outcome"}),
			Opens: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "boxchain",
				Subsystem: "engine",
				Name:      "opens_total",
				Help:      "Box open invocations segmented by outcome.",
			}, []string{"outcome"}),
			Claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "boxchain",
				Subsystem: "engine",
				Name:      "claims_total",
				Help:      "Reward claim invocations segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
		}
		prometheus.MustRegister(engineRegistry.Mints, engineRegistry.Opens, engineRegistry.Claims)
	})
	return engineRegistry
}

// Outcome buckets an error into the metric label values.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package resilience

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// BreakerTransitions counts breaker state transitions per target.
	BreakerTransitions *prometheus.CounterVec
)

// MustRegisterMetrics initialises and registers the breaker collectors.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Count of circuit breaker state transitions.",
		}, []string{"target", "from", "to"})
		if err := reg.Register(BreakerTransitions); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if v, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					BreakerTransitions = v
				}
			}
		}
	})
}

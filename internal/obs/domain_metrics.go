package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// NotificationsTotal counts processed provider notifications by outcome.
	NotificationsTotal *prometheus.CounterVec
	// RemoteCancelTotal counts remote cancel calls issued after signature
	// failures.
	RemoteCancelTotal *prometheus.CounterVec
	// OrderTransitionsTotal counts applied order workflow transitions.
	OrderTransitionsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payu_notifications_total",
			Help:      "Count of processed PayU notifications by outcome.",
		}, []string{"outcome"})
		RemoteCancelTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payu_remote_cancel_total",
			Help:      "Count of remote order cancel calls by result.",
		}, []string{"result"})
		OrderTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Count of applied order workflow transitions.",
		}, []string{"workflow", "transition"})

		registerCollector(reg, NotificationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NotificationsTotal = v
			}
		})
		registerCollector(reg, RemoteCancelTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RemoteCancelTotal = v
			}
		})
		registerCollector(reg, OrderTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderTransitionsTotal = v
			}
		})
	})
}

// ObserveNotification increments the notification outcome counter when domain
// metrics are registered.
func ObserveNotification(outcome string) {
	if NotificationsTotal != nil {
		NotificationsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRemoteCancel increments the remote cancel counter when domain
// metrics are registered.
func ObserveRemoteCancel(result string) {
	if RemoteCancelTotal != nil {
		RemoteCancelTotal.WithLabelValues(result).Inc()
	}
}

// ObserveOrderTransition increments the transition counter when domain
// metrics are registered.
func ObserveOrderTransition(workflow, transition string) {
	if OrderTransitionsTotal != nil {
		OrderTransitionsTotal.WithLabelValues(workflow, transition).Inc()
	}
}

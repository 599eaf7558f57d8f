package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK = "OK"

	CompensationReleased = "released"
	CompensationFailed   = "failed"
)

// OrderMetrics tracks order placement and stock compensation.
// A nil *OrderMetrics is valid and records nothing.
type OrderMetrics struct {
	placements            *prometheus.CounterVec
	placementDuration     prometheus.Histogram
	compensations         *prometheus.CounterVec
	compensationAttempts  prometheus.Histogram
	reconciliationFlagged prometheus.Counter
}

// NewOrderMetrics registers the order collectors on the default registry.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer registers the collectors on registerer.
// Re-registering returns the collectors already in place.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		placements: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_order_placements_total",
			Help: "Order placement attempts by result code",
		}, []string{"result"})),
		placementDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shop_order_placement_duration_seconds",
			Help:    "End-to-end order placement latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})),
		compensations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_stock_compensations_total",
			Help: "Compensating stock releases by outcome",
		}, []string{"outcome"})),
		compensationAttempts: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shop_stock_compensation_attempts",
			Help:    "Release attempts needed per compensation",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		})),
		reconciliationFlagged: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_stock_reconciliations_flagged_total",
			Help: "Reservations flagged for manual stock reconciliation",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordPlacement counts one placement under result and observes its latency.
func (m *OrderMetrics) RecordPlacement(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.placements.WithLabelValues(result).Inc()
	m.placementDuration.Observe(duration.Seconds())
}

// RecordCompensation counts a finished compensation and how many release attempts it took.
func (m *OrderMetrics) RecordCompensation(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(outcome).Inc()
	m.compensationAttempts.Observe(float64(attempts))
}

func (m *OrderMetrics) RecordReconciliationFlagged() {
	if m == nil {
		return
	}
	m.reconciliationFlagged.Inc()
}

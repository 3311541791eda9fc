package ledger

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// newMetrics registers on reg; a nil reg keeps the collectors unregistered.
// Engines sharing a registerer share the collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		operations: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations by outcome",
			},
			[]string{"operation", "result"},
		)),
		duration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bank",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger units of work",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		)),
	}
}

// register returns the collector already registered under the same
// descriptor if there is one. Any other registration error panics, like
// promauto.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) observe(operation string, start time.Time, err error) {
	m.operations.WithLabelValues(operation, Kind(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

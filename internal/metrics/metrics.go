// Package metrics holds the Prometheus collectors for attendance activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	Transitions     *prometheus.CounterVec
	StorageFailures prometheus.Counter
	Frames          *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
// A nil registerer falls back to the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_transitions_total",
			Help: "Ledger check-in/check-out attempts by action and result",
		}, []string{"action", "result"}),
		StorageFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "attendance_storage_failures_total",
			Help: "Ledger writes that failed to reach persistent storage",
		}),
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_frames_total",
			Help: "Captured frames, split by whether recognition ran on them",
		}, []string{"processed"}),
	}
}

// ObserveTransition counts one ledger transition attempt. Safe on a nil receiver.
func (m *Metrics) ObserveTransition(action, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, result).Inc()
}

// ObserveStorageFailure counts one failed ledger write. Safe on a nil receiver.
func (m *Metrics) ObserveStorageFailure() {
	if m == nil {
		return
	}
	m.StorageFailures.Inc()
}

// ObserveFrame counts one captured frame. Safe on a nil receiver.
func (m *Metrics) ObserveFrame(processed bool) {
	if m == nil {
		return
	}
	label := "false"
	if processed {
		label = "true"
	}
	m.Frames.WithLabelValues(label).Inc()
}

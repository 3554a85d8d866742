package nanoprefs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "nanoprefs"
	metricsSubsystem = "store"
)

// storeMetrics is nil-safe: a store built without WithMetrics records
// nothing.
type storeMetrics struct {
	reads         *prometheus.CounterVec
	writes        *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	commits       *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	f := promauto.With(reg)
	return &storeMetrics{
		reads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "reads_total",
			Help:      "Field reads through the store",
		}, []string{"field"}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "writes_total",
			Help:      "Field writes and removals through the store",
		}, []string{"field"}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "decode_errors_total",
			Help:      "Stored values that failed to decode",
		}, []string{"field"}),
		commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "commits_total",
			Help:      "Commits and applies by outcome",
		}, []string{"mode", "result"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "notifications_total",
			Help:      "Backend change notifications by outcome",
		}, []string{"result"}),
	}
}

func (m *storeMetrics) read(field string, err error) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(field).Inc()
	if err != nil {
		m.decodeErrors.WithLabelValues(field).Inc()
	}
}

func (m *storeMetrics) write(field string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(field).Inc()
}

func (m *storeMetrics) commit(mode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commits.WithLabelValues(mode, result).Inc()
}

func (m *storeMetrics) notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

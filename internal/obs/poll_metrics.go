package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PollMetrics describes the health of the exporter's own poll loop.
type PollMetrics struct {
	CycleDuration prometheus.Histogram
	QueueErrors   *prometheus.CounterVec
	LastSuccess   prometheus.Gauge
}

// NewPollMetrics registers and returns poll loop collectors.
func NewPollMetrics(namespace string, reg prometheus.Registerer) *PollMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PollMetrics{
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time taken to refresh all queue gauges.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		QueueErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Number of failed queue gauge refreshes.",
		}, []string{"queue"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last poll cycle in which every queue refreshed.",
		}),
	}
	mustRegisterCollector(reg, m.CycleDuration, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Histogram); ok {
			m.CycleDuration = v
		}
	})
	mustRegisterCollector(reg, m.QueueErrors, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.QueueErrors = v
		}
	})
	mustRegisterCollector(reg, m.LastSuccess, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Gauge); ok {
			m.LastSuccess = v
		}
	})
	return m
}

// ObserveCycle records one poll cycle. Safe to call on a nil receiver.
func (m *PollMetrics) ObserveCycle(elapsed time.Duration, failedQueues []string, ok bool) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(elapsed.Seconds())
	for _, queue := range failedQueues {
		m.QueueErrors.WithLabelValues(queue).Inc()
	}
	if ok {
		m.LastSuccess.SetToCurrentTime()
	}
}

// Package metrics holds the prometheus collectors of the action pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	actionsApplied  *prometheus.CounterVec
	actionsRejected *prometheus.CounterVec
	published       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	emails          *prometheus.CounterVec
	lockWait        *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turns",
			Name:      "actions_applied_total",
			Help:      "Actions appended to a game log, by state derivation mode.",
		}, []string{"mode"}),
		actionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turns",
			Name:      "actions_rejected_total",
			Help:      "Actions refused before persistence, by reason.",
		}, []string{"reason"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turns",
			Name:      "notifications_published_total",
			Help:      "Bus messages published, by kind.",
		}, []string{"kind"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turns",
			Name:      "notification_publish_failures_total",
			Help:      "Bus publishes that failed, by kind.",
		}, []string{"kind"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "turns",
			Name:      "turn_emails_total",
			Help:      "Turn email decisions per recipient, by outcome.",
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "turns",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a game lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"namespace"}),
	}
	if reg != nil {
		reg.MustRegister(m.actionsApplied, m.actionsRejected, m.published, m.publishFailures, m.emails, m.lockWait)
	}
	return m
}

func (m *Metrics) ActionApplied(mode string) {
	if m == nil {
		return
	}
	m.actionsApplied.WithLabelValues(mode).Inc()
}

func (m *Metrics) ActionRejected(reason string) {
	if m == nil {
		return
	}
	m.actionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Published(kind string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(kind).Inc()
}

func (m *Metrics) PublishFailed(kind string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(kind).Inc()
}

// Email outcomes: sent, present, disabled, throttled, failed.
func (m *Metrics) Email(outcome string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LockWait(namespace string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(namespace).Observe(d.Seconds())
}

// Package metrics exposes Prometheus counters for forum activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the forum counters. A nil *Metrics is valid and records
// nothing, so services can run without a registry in tests.
type Metrics struct {
	registerOnce sync.Once

	complaintsPosted *prometheus.CounterVec
	voteTransitions  *prometheus.CounterVec
	voteConflicts    prometheus.Counter
	statusChanges    *prometheus.CounterVec
	repliesPosted    prometheus.Counter
	feedClients      prometheus.Gauge
	notifyFailures   prometheus.Counter
}

// New creates Metrics registered with registry.
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.Register(registry)
	return m
}

// Register registers the counters with registry. Only the first call has any
// effect.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if m == nil || registry == nil {
		return
	}
	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.complaintsPosted = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "query_complaints_posted_total",
			Help: "Total number of complaints posted, by category",
		}, []string{"category"})

		m.voteTransitions = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "query_vote_transitions_total",
			Help: "Total number of applied vote transitions, by action",
		}, []string{"action"})

		m.voteConflicts = factory.NewCounter(prometheus.CounterOpts{
			Name: "query_vote_conflicts_total",
			Help: "Total number of vote writes rejected by the uniqueness constraint",
		})

		m.statusChanges = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "query_status_changes_total",
			Help: "Total number of complaint status updates, by new status",
		}, []string{"status"})

		m.repliesPosted = factory.NewCounter(prometheus.CounterOpts{
			Name: "query_replies_posted_total",
			Help: "Total number of admin replies posted",
		})

		m.feedClients = factory.NewGauge(prometheus.GaugeOpts{
			Name: "query_feed_clients",
			Help: "Number of connected live feed clients",
		})

		m.notifyFailures = factory.NewCounter(prometheus.CounterOpts{
			Name: "query_notification_failures_total",
			Help: "Total number of admin notifications that failed to send",
		})
	})
}

func (m *Metrics) ComplaintPosted(category string) {
	if m == nil || m.complaintsPosted == nil {
		return
	}
	m.complaintsPosted.WithLabelValues(category).Inc()
}

func (m *Metrics) VoteTransition(action string) {
	if m == nil || m.voteTransitions == nil {
		return
	}
	m.voteTransitions.WithLabelValues(action).Inc()
}

func (m *Metrics) VoteConflict() {
	if m == nil || m.voteConflicts == nil {
		return
	}
	m.voteConflicts.Inc()
}

func (m *Metrics) StatusChanged(status string) {
	if m == nil || m.statusChanges == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) ReplyPosted() {
	if m == nil || m.repliesPosted == nil {
		return
	}
	m.repliesPosted.Inc()
}

func (m *Metrics) FeedClientsChanged(delta int) {
	if m == nil || m.feedClients == nil {
		return
	}
	m.feedClients.Add(float64(delta))
}

func (m *Metrics) NotificationFailed() {
	if m == nil || m.notifyFailures == nil {
		return
	}
	m.notifyFailures.Inc()
}

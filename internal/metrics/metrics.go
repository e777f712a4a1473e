package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters for hazard reporting and deletion voting.
type Metrics struct {
	AlertsReported     *prometheus.CounterVec // labels: reason
	Confirmations      prometheus.Counter
	AlertsEscalated    prometheus.Counter
	AlertsModerated    *prometheus.CounterVec // labels: status={DISMISSED,RESOLVED}
	ProposalsCreated   prometheus.Counter
	Votes              *prometheus.CounterVec // labels: choice
	ProposalsResolved  *prometheus.CounterVec // labels: status
	CommandRejections  *prometheus.CounterVec // labels: code
	NotificationsDrop  prometheus.Counter
	NotificationErrors *prometheus.CounterVec // labels: sink
}

// New creates the metrics and registers them with reg. A nil reg leaves them
// unregistered, which tests use to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "alerts_reported_total",
			Help:      "Hazard alerts created, by reason.",
		}, []string{"reason"}),
		Confirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "confirmations_total",
			Help:      "Confirmations recorded on alerts, explicit or folded in from co-reporters.",
		}),
		AlertsEscalated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "alerts_escalated_total",
			Help:      "Alerts promoted from PENDING to CONFIRMED.",
		}),
		AlertsModerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "alerts_moderated_total",
			Help:      "Alerts dismissed or resolved by moderators.",
		}, []string{"status"}),
		ProposalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "proposals_created_total",
			Help:      "Deletion proposals opened.",
		}),
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "votes_total",
			Help:      "Votes cast on deletion proposals, by choice.",
		}, []string{"choice"}),
		ProposalsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "proposals_resolved_total",
			Help:      "Deletion proposals leaving PROPOSED, by resulting status.",
		}, []string{"status"}),
		CommandRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "command_rejections_total",
			Help:      "Commands rejected with a business error, by code.",
		}, []string{"code"}),
		NotificationsDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "notifications_dropped_total",
			Help:      "Events dropped because the notification queue was full or closed.",
		}),
		NotificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spot_safety",
			Name:      "notification_errors_total",
			Help:      "Event deliveries that failed, by sink.",
		}, []string{"sink"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AlertsReported,
			m.Confirmations,
			m.AlertsEscalated,
			m.AlertsModerated,
			m.ProposalsCreated,
			m.Votes,
			m.ProposalsResolved,
			m.CommandRejections,
			m.NotificationsDrop,
			m.NotificationErrors,
		)
	}

	return m
}

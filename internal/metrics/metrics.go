package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutreachSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_sent_total",
			Help: "Total outreach emails delivered",
		},
	)

	OutreachFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_failures_total",
			Help: "Total outreach emails that ended failed or errored",
		},
	)

	ClaimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claim_conflicts_total",
			Help: "Claims lost to another dispatch cycle",
		},
	)

	FollowupsPlanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "followups_planned_total",
			Help: "Follow-up messages created by the planner",
		},
	)

	StaleRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_requeued_total",
			Help: "Messages re-armed from a stuck sending state",
		},
	)
)

func Init() {
	prometheus.MustRegister(OutreachSent)
	prometheus.MustRegister(OutreachFailures)
	prometheus.MustRegister(ClaimConflicts)
	prometheus.MustRegister(FollowupsPlanned)
	prometheus.MustRegister(StaleRequeued)
}

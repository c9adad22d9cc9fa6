// Package metrics exposes the prometheus collectors of the billing core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	AdmissionDecisions *prometheus.CounterVec
	SubscribeOutcomes  *prometheus.CounterVec
	UsageDropped       prometheus.Counter
	UsageRecorded      prometheus.Counter
	ExpiredSwept       prometheus.Counter
}

// New registers the collectors on reg. Passing a fresh registry keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AdmissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Metered request admission outcomes.",
		}, []string{"outcome"}),
		SubscribeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscribe_outcomes_total",
			Help: "Subscribe calls by result status.",
		}, []string{"status"}),
		UsageDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usage_records_dropped_total",
			Help: "Usage records dropped because the recorder queue was full or the write failed.",
		}),
		UsageRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usage_records_written_total",
			Help: "Usage records persisted.",
		}),
		ExpiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Subscriptions deactivated by the expiry sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.AdmissionDecisions, m.SubscribeOutcomes, m.UsageDropped, m.UsageRecorded, m.ExpiredSwept)
	}
	return m
}

// Nop returns unregistered collectors, for callers that don't export metrics.
func Nop() *Metrics {
	return New(nil)
}

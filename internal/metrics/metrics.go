package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsTotal            *prometheus.CounterVec
	RefundsTotal         prometheus.Counter
	LedgerConflictsTotal prometheus.Counter
	ReconciliationsTotal prometheus.Counter
	PollAttemptsTotal    prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "driftframe_jobs_total",
			Help: "Generation jobs by mode and terminal state.",
		}, []string{"mode", "state"}),
		RefundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftframe_refunds_total",
			Help: "Refunds issued for failed, timed out or cancelled jobs.",
		}),
		LedgerConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftframe_ledger_conflicts_total",
			Help: "Compare-and-write conflicts observed by the ledger.",
		}),
		ReconciliationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftframe_reconciliations_required_total",
			Help: "Refunds that exhausted retries and need operator attention.",
		}),
		PollAttemptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "driftframe_provider_poll_attempts_total",
			Help: "Status polls issued against the generation provider.",
		}),
	}

	registry.MustRegister(
		m.JobsTotal,
		m.RefundsTotal,
		m.LedgerConflictsTotal,
		m.ReconciliationsTotal,
		m.PollAttemptsTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

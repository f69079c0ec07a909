// Package metrics holds the service's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "note_wallet"

// Transaction outcomes.
const (
	OutcomeSubmitted = "submitted"
	OutcomeFailed    = "failed"
)

// Metrics groups every collector exported by the service.
type Metrics struct {
	Registry *prometheus.Registry

	transactions *prometheus.CounterVec
	stages       *prometheus.HistogramVec
	syncs        *prometheus.CounterVec
	syncedNotes  prometheus.Counter
	batchItems   *prometheus.CounterVec
}

// New registers the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions attempted, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_stage_duration_seconds",
			Help:      "Time spent in each orchestration stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "State syncs with the node, by outcome.",
		}, []string{"outcome"}),
		syncedNotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synced_notes_total",
			Help:      "Notes newly committed to the local store by sync.",
		}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch transfer items processed, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transactions, m.stages, m.syncs, m.syncedNotes, m.batchItems,
	)
	return m
}

// Transaction counts one attempt of kind ("transfer", "consume").
func (m *Metrics) Transaction(kind, outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(kind, outcome).Inc()
}

// ObserveStage records how long stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Sync counts one sync and the notes it committed.
func (m *Metrics) Sync(err error, newNotes int) {
	if m == nil {
		return
	}
	if err != nil {
		m.syncs.WithLabelValues("failed").Inc()
		return
	}
	m.syncs.WithLabelValues("ok").Inc()
	m.syncedNotes.Add(float64(newNotes))
}

// BatchItem counts one processed batch item.
func (m *Metrics) BatchItem(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.batchItems.WithLabelValues("ok").Inc()
		return
	}
	m.batchItems.WithLabelValues("failed").Inc()
}

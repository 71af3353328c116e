// Package metrics provides Prometheus collectors for the campaign service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all campaign service metrics.
	Namespace = "campaign"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing,
// so components can be built without metrics in tests.
type Metrics struct {
	// Scheduler metrics
	ScansTotal          *prometheus.CounterVec
	ScanDurationSeconds prometheus.Histogram
	SourceErrorsTotal   *prometheus.CounterVec
	PostingsFetched     *prometheus.CounterVec

	// Pipeline metrics
	CardsCreatedTotal prometheus.Counter
	TransitionsTotal  *prometheus.CounterVec

	// Dispatcher metrics
	DispatchAttemptsTotal *prometheus.CounterVec
	DispatchFailedTotal   *prometheus.CounterVec
	EventQueueDepth       *prometheus.GaugeVec
}

// New creates and registers all metrics on reg (the default registerer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initSchedulerMetrics(factory)
	m.initPipelineMetrics(factory)
	m.initDispatcherMetrics(factory)

	return m
}

func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.ScansTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "scans_total",
			Help:      "Campaign scans by outcome",
		},
		[]string{"outcome"},
	)

	m.ScanDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "scan_duration_seconds",
			Help:      "Duration of a single campaign scan",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	m.SourceErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "source_errors_total",
			Help:      "Job source fetch failures",
		},
		[]string{"source"},
	)

	m.PostingsFetched = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "postings_fetched_total",
			Help:      "Postings returned by job sources",
		},
		[]string{"source"},
	)
}

func (m *Metrics) initPipelineMetrics(factory promauto.Factory) {
	m.CardsCreatedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "cards_created_total",
			Help:      "Application cards created in new-leads",
		},
	)

	m.TransitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Successful card transitions by target status",
		},
		[]string{"to"},
	)
}

func (m *Metrics) initDispatcherMetrics(factory promauto.Factory) {
	m.DispatchAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dispatcher",
			Name:      "attempts_total",
			Help:      "Side-effect attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	m.DispatchFailedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dispatcher",
			Name:      "failed_total",
			Help:      "Side effects abandoned after exhausting retries",
		},
		[]string{"kind"},
	)

	m.EventQueueDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "queue_depth",
			Help:      "Pending events per subscriber",
		},
		[]string{"subscriber"},
	)
}

// ObserveScan records one campaign scan.
func (m *Metrics) ObserveScan(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(outcome).Inc()
	m.ScanDurationSeconds.Observe(d.Seconds())
}

// IncSourceError counts a failed fetch for source.
func (m *Metrics) IncSourceError(source string) {
	if m == nil {
		return
	}
	m.SourceErrorsTotal.WithLabelValues(source).Inc()
}

// AddPostings counts postings fetched from source.
func (m *Metrics) AddPostings(source string, n int) {
	if m == nil {
		return
	}
	m.PostingsFetched.WithLabelValues(source).Add(float64(n))
}

// IncCardsCreated counts a new card.
func (m *Metrics) IncCardsCreated() {
	if m == nil {
		return
	}
	m.CardsCreatedTotal.Inc()
}

// ObserveTransition counts a successful status change.
func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(to).Inc()
}

// ObserveDispatchAttempt counts one side-effect attempt.
func (m *Metrics) ObserveDispatchAttempt(kind string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.DispatchAttemptsTotal.WithLabelValues(kind, result).Inc()
}

// IncDispatchFailed counts a side effect given up on.
func (m *Metrics) IncDispatchFailed(kind string) {
	if m == nil {
		return
	}
	m.DispatchFailedTotal.WithLabelValues(kind).Inc()
}

// SetQueueDepth reports the backlog of one event subscriber.
func (m *Metrics) SetQueueDepth(subscriber string, depth int) {
	if m == nil {
		return
	}
	m.EventQueueDepth.WithLabelValues(subscriber).Set(float64(depth))
}

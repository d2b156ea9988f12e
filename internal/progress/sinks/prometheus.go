package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"ipowatch/internal/progress"
)

// PrometheusSink exports crawl progress metrics. It owns the collectors
// for run lifecycle counts and per-category page/record counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge

	pagesCrawled     *prometheus.CounterVec
	recordsInserted  *prometheus.CounterVec
	recordsDuplicate *prometheus.CounterVec
	recordsPastDated *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided
// registry; nil registers against the default one.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipowatch_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipowatch_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipowatch_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		pagesCrawled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipowatch_pages_crawled_total",
			Help: "Listing pages fetched and parsed per category.",
		}, []string{"category"}),
		recordsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipowatch_records_inserted_total",
			Help: "Schedule records written per category.",
		}, []string{"category"}),
		recordsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipowatch_records_duplicate_total",
			Help: "Schedule records suppressed as duplicates per category.",
		}, []string{"category"}),
		recordsPastDated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipowatch_records_past_dated_total",
			Help: "Rows skipped by the future-only filter per category.",
		}, []string{"category"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.pagesCrawled,
		s.recordsInserted,
		s.recordsDuplicate,
		s.recordsPastDated,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. Safe for
// concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Kind {
	case progress.KindRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.KindRunDone:
		s.completeRun(evt, "success")
	case progress.KindRunError:
		s.completeRun(evt, "error")
	case progress.KindRunCanceled:
		s.completeRun(evt, "canceled")
	case progress.KindPageDone:
		category := string(evt.Category)
		s.pagesCrawled.WithLabelValues(category).Inc()
		s.recordsInserted.WithLabelValues(category).Add(float64(evt.Inserted))
		s.recordsDuplicate.WithLabelValues(category).Add(float64(evt.Duplicates))
		s.recordsPastDated.WithLabelValues(category).Add(float64(evt.Skipped))
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

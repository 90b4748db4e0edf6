package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/filmmeta/internal/progress"
)

// PrometheusSink exports batch progress via Prometheus: runs started,
// completed and running, run wall time, collected items and completion ratio.
type PrometheusSink struct {
	batchesStarted   prometheus.Counter
	batchesCompleted *prometheus.CounterVec
	batchesRunning   prometheus.Gauge
	batchRuntime     *prometheus.HistogramVec
	itemsCollected   *prometheus.CounterVec
	completionRatio  prometheus.Gauge

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filmmeta_progress_batches_started_total",
			Help: "Batch runs that have started.",
		}),
		batchesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmmeta_progress_batches_completed_total",
			Help: "Batch runs completed partitioned by result.",
		}, []string{"result"}),
		batchesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filmmeta_progress_batches_running",
			Help: "Current number of running batches.",
		}),
		batchRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "filmmeta_progress_batch_runtime_seconds",
			Help:    "Wall time per completed batch.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		itemsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filmmeta_progress_items_collected_total",
			Help: "Items collected by the scheduler partitioned by stage.",
		}, []string{"stage"}),
		completionRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filmmeta_progress_completion_ratio",
			Help: "Fraction of the latest batch collected so far.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.batchesStarted,
		s.batchesCompleted,
		s.batchesRunning,
		s.batchRuntime,
		s.itemsCollected,
		s.completionRatio,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageBatchStart:
		s.batchesStarted.Inc()
		s.completionRatio.Set(0)
		if s.tracker.start(evt.RunID) {
			s.batchesRunning.Inc()
		}
	case progress.StageBatchDone:
		s.finish(evt, "success")
	case progress.StageBatchError:
		s.finish(evt, "error")
	case progress.StageItemDone, progress.StageItemDegraded:
		s.itemsCollected.WithLabelValues(string(evt.Stage)).Inc()
		if evt.Total > 0 {
			s.completionRatio.Set(float64(evt.Step) / float64(evt.Total))
		}
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.batchesCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.batchRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.batchesRunning.Dec()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

// Package dispatcher schedules scrape tasks over a bounded sliding window.
package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmmeta/internal/crawler"
)

// Observer is called after each record is collected. step counts from 1.
// It runs on the scheduling goroutine and must not block for long.
type Observer func(step, total int, target crawler.ScrapeTarget, record crawler.MediaRecord)

// Dispatcher runs a Processor over a batch with at most maxConcurrency tasks
// outstanding.
type Dispatcher struct {
	proc     crawler.Processor
	observer Observer
	logger   *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithObserver registers a per-item callback.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Dispatcher.
func New(proc crawler.Processor, opts ...Option) *Dispatcher {
	d := &Dispatcher{proc: proc, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type future struct {
	target crawler.ScrapeTarget
	result chan crawler.MediaRecord
}

// Run processes every target and returns one record per target in input
// order. When the window holds maxConcurrency tasks, the oldest is awaited
// before the next is submitted. Once ctx is done no further tasks start;
// targets never submitted come back as degraded records.
func (d *Dispatcher) Run(ctx context.Context, targets []crawler.ScrapeTarget, maxConcurrency int) ([]crawler.MediaRecord, error) {
	if maxConcurrency <= 0 {
		return nil, crawler.NewInputError("max concurrency must be positive, got %d", maxConcurrency)
	}

	total := len(targets)
	records := make([]crawler.MediaRecord, 0, total)
	collect := func(target crawler.ScrapeTarget, rec crawler.MediaRecord) {
		records = append(records, rec)
		if d.observer != nil {
			d.observer(len(records), total, target, rec)
		}
	}

	window := make([]future, 0, maxConcurrency)
	submitted := 0
	for _, target := range targets {
		if len(window) == maxConcurrency {
			oldest := window[0]
			window = window[1:]
			collect(oldest.target, <-oldest.result)
		}
		if ctx.Err() != nil {
			break
		}
		window = append(window, d.submit(ctx, target))
		submitted++
	}

	for _, f := range window {
		collect(f.target, <-f.result)
	}

	if skipped := total - submitted; skipped > 0 {
		d.logger.Warn("batch canceled before all targets were submitted",
			zap.Int("skipped", skipped),
			zap.Int("total", total),
			zap.Error(ctx.Err()),
		)
		for _, target := range targets[submitted:] {
			collect(target, crawler.Degraded(target))
		}
	}
	return records, nil
}

func (d *Dispatcher) submit(ctx context.Context, target crawler.ScrapeTarget) future {
	f := future{target: target, result: make(chan crawler.MediaRecord, 1)}
	go func() {
		f.result <- d.proc.Process(ctx, target)
	}()
	return f
}

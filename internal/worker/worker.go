// Package worker runs the per-item scrape pipeline: fetch, extract, and
// degrade to a minimal record on any failure.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/filmmeta/internal/crawler"
	"github.com/JakeFAU/filmmeta/internal/extract"
	"github.com/JakeFAU/filmmeta/internal/metrics"
)

// State is the lifecycle position of one item.
type State string

// Item lifecycle: Pending -> Fetching -> Extracting -> Done, or
// Fetching|Extracting -> Degraded on failure.
const (
	StatePending    State = "pending"
	StateFetching   State = "fetching"
	StateExtracting State = "extracting"
	StateDone       State = "done"
	StateDegraded   State = "degraded"
)

// Worker turns scrape targets into media records. It is stateless and safe
// for concurrent use.
type Worker struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// New constructs a Worker.
func New(fetcher crawler.Fetcher, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{fetcher: fetcher, logger: logger}
}

// Process fetches and extracts target. It never fails: fetch errors and
// panics during extraction produce crawler.Degraded(target).
func (w *Worker) Process(ctx context.Context, target crawler.ScrapeTarget) (record crawler.MediaRecord) {
	metrics.IncInFlight()
	defer metrics.DecInFlight()

	state := StatePending
	defer func() {
		if r := recover(); r != nil {
			record = w.degrade(target, state, fmt.Errorf("panic: %v", r))
		}
	}()

	if w.fetcher == nil {
		return w.degrade(target, state, fmt.Errorf("no fetcher configured"))
	}

	state = StateFetching
	doc, err := w.fetcher.Fetch(ctx, target.SourceURL)
	if err != nil {
		return w.degrade(target, state, err)
	}

	state = StateExtracting
	record = extract.Record(doc.Doc, target)

	metrics.ObserveItem(string(crawler.OutcomeDone))
	w.logger.Debug("item processed",
		zap.String("url", target.SourceURL),
		zap.String("title", record.Title),
		zap.String("state", string(StateDone)),
	)
	return record
}

func (w *Worker) degrade(target crawler.ScrapeTarget, failedIn State, cause error) crawler.MediaRecord {
	fields := []zap.Field{
		zap.String("url", target.SourceURL),
		zap.String("title", target.HintTitle),
		zap.String("failed_in", string(failedIn)),
		zap.Error(cause),
	}
	if kind, ok := crawler.FetchErrorKindOf(cause); ok {
		fields = append(fields, zap.String("kind", string(kind)))
	}
	w.logger.Warn("item degraded", fields...)
	metrics.ObserveItem(string(crawler.OutcomeDegraded))
	return crawler.Degraded(target)
}

// Package app holds the pipeline's long-lived services and runs batches
// through them.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmmeta/internal/aggregate"
	"github.com/JakeFAU/filmmeta/internal/clock/system"
	"github.com/JakeFAU/filmmeta/internal/config"
	"github.com/JakeFAU/filmmeta/internal/crawler"
	"github.com/JakeFAU/filmmeta/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/filmmeta/internal/fetcher/colly"
	"github.com/JakeFAU/filmmeta/internal/hash/sha256"
	"github.com/JakeFAU/filmmeta/internal/id/uuid"
	"github.com/JakeFAU/filmmeta/internal/metrics"
	"github.com/JakeFAU/filmmeta/internal/policy/ratelimit"
	"github.com/JakeFAU/filmmeta/internal/progress"
	"github.com/JakeFAU/filmmeta/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/filmmeta/internal/publisher/pubsub"
	"github.com/JakeFAU/filmmeta/internal/storage/gcs"
	"github.com/JakeFAU/filmmeta/internal/storage/local"
	"github.com/JakeFAU/filmmeta/internal/storage/memory"
	"github.com/JakeFAU/filmmeta/internal/storage/postgres"
	"github.com/JakeFAU/filmmeta/internal/store"
	"github.com/JakeFAU/filmmeta/internal/worker"
)

const hubCloseTimeout = 5 * time.Second

// App holds the services shared by every batch: the fetcher, the output
// store, the optional catalog and publisher, and the progress hub.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  crawler.Clock
	ids    *uuid.Generator

	fetcher   crawler.Fetcher
	store     crawler.BlobStore
	catalog   crawler.CatalogStore
	publisher crawler.Publisher
	runs      store.RunRepository

	registerer  prometheus.Registerer
	progressOut io.Writer
	status      *sinks.StatusSink
	hub         *progress.Hub

	closers []func()
}

// Report summarizes one finished batch.
type Report struct {
	RunID    string
	URI      string
	Records  int
	Degraded int
	Duration time.Duration
}

// Option customizes an App.
type Option func(*App)

// WithFetcher replaces the colly fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithBlobStore replaces the store selected by storage.backend.
func WithBlobStore(s crawler.BlobStore) Option {
	return func(a *App) { a.store = s }
}

// WithCatalog replaces the Postgres catalog.
func WithCatalog(c crawler.CatalogStore) Option {
	return func(a *App) { a.catalog = c }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithRunRepository records batch history in repo.
func WithRunRepository(repo store.RunRepository) Option {
	return func(a *App) { a.runs = repo }
}

// WithClock sets the clock used for timestamps and file names.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithRegisterer registers progress collectors against reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithProgressOutput draws the terminal progress line on w when
// scrape.show_progress is set.
func WithProgressOutput(w io.Writer) Option {
	return func(a *App) { a.progressOut = w }
}

// New builds the services cfg asks for. Collaborators supplied through
// options take precedence over the configured ones.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:        cfg,
		logger:     logger,
		ids:        uuid.New(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = system.New()
	}

	if a.fetcher == nil {
		a.fetcher = a.newFetcher()
	}
	if a.store == nil {
		blobs, err := a.newBlobStore(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = blobs
	}
	if a.catalog == nil && cfg.CatalogEnabled() {
		if err := a.connectCatalog(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if a.publisher == nil && cfg.NotifyEnabled() {
		if err := a.connectPublisher(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	if err := a.startHub(); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("pipeline services initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("catalog", a.catalog != nil),
		zap.Bool("notify", a.publisher != nil),
		zap.Bool("run_history", a.runs != nil),
		zap.Int("workers", cfg.Scrape.Workers),
	)
	return a, nil
}

func (a *App) newFetcher() crawler.Fetcher {
	opts := []collyfetcher.Option{collyfetcher.WithLogger(a.logger.Named("fetcher"))}
	if a.cfg.Scrape.RateLimitRPS > 0 {
		opts = append(opts, collyfetcher.WithLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   a.cfg.Scrape.RateLimitRPS,
			DefaultBurst: a.cfg.Scrape.RateLimitBurst,
		})))
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Scrape.UserAgent,
		Timeout:   a.cfg.Scrape.Timeout,
		DelayMin:  a.cfg.Scrape.DelayMin,
		DelayMax:  a.cfg.Scrape.DelayMax,
	}, opts...)
}

func (a *App) newBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client failed", zap.Error(err))
			}
		})
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Output.Directory})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		return blobs, nil
	case config.BackendMemory:
		return memory.NewBlobStore(), nil
	default:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Output.Directory})
		if err != nil {
			return nil, &crawler.IOError{Path: a.cfg.Output.Directory, Err: err}
		}
		return blobs, nil
	}
}

func (a *App) connectCatalog(ctx context.Context) error {
	catalog, err := postgres.NewCatalogStore(ctx, postgres.Config{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init catalog: %w", err)
	}
	a.closers = append(a.closers, catalog.Close)
	runs, err := catalog.Runs(a.cfg.DB.RunsTable)
	if err != nil {
		return fmt.Errorf("init run history: %w", err)
	}
	if a.cfg.DB.EnsureSchema {
		if err := catalog.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init catalog: %w", err)
		}
		if err := runs.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("init run history: %w", err)
		}
	}
	a.catalog = catalog
	if a.runs == nil {
		a.runs = runs
	}
	return nil
}

func (a *App) connectPublisher(ctx context.Context) error {
	client, err := pubsubpublisher.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return err
	}
	pub := pubsubpublisher.New(client, a.cfg.PubSub.TopicName, a.logger.Named("publisher"))
	a.closers = append(a.closers, func() {
		pub.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client failed", zap.Error(err))
		}
	})
	a.publisher = pub
	return nil
}

func (a *App) startHub() error {
	a.status = sinks.NewStatusSink()
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress")), a.status}
	if a.registerer != nil {
		promSink, err := sinks.NewPrometheusSink(a.registerer)
		if err != nil {
			return fmt.Errorf("init progress metrics: %w", err)
		}
		hubSinks = append(hubSinks, promSink)
	}
	if a.runs != nil {
		hubSinks = append(hubSinks, sinks.NewRunSink(a.runs))
	}
	if a.cfg.Scrape.ShowProgress && a.progressOut != nil {
		hubSinks = append(hubSinks, sinks.NewBarSink(a.progressOut, progress.DefaultLabelWidth))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("hub")}, hubSinks...)
	return nil
}

// Status exposes per-run progress for the ops server.
func (a *App) Status() *sinks.StatusSink {
	return a.status
}

// Run scrapes targets, writes the sorted batch and reports the outcome. The
// output is written even when ctx is canceled mid-batch; targets that never
// started come back degraded. A write failure is a *crawler.IOError.
func (a *App) Run(ctx context.Context, targets []crawler.ScrapeTarget) (Report, error) {
	rawID, err := a.ids.NewRawID()
	if err != nil {
		return Report{}, fmt.Errorf("start batch: %w", err)
	}
	runID := progress.UUIDToBytes(rawID)
	report := Report{RunID: rawID.String()}
	logger := a.logger.With(zap.String("run_id", report.RunID))

	start := a.clock.Now()
	a.hub.Emit(progress.Event{RunID: runID, TS: start, Stage: progress.StageBatchStart, Total: len(targets)})
	logger.Info("batch started", zap.Int("targets", len(targets)))

	disp := dispatcher.New(
		worker.New(a.fetcher, logger.Named("worker")),
		dispatcher.WithObserver(progress.ItemObserver(a.hub, runID, a.clock.Now)),
		dispatcher.WithLogger(logger.Named("dispatcher")),
	)
	records, err := disp.Run(ctx, targets, a.cfg.Scrape.Workers)
	if err != nil {
		a.finish(runID, start, progress.StageBatchError, err.Error(), 0)
		return report, fmt.Errorf("run batch: %w", err)
	}

	result := aggregate.Finalize(report.RunID, records)
	report.Records = len(result.Records)
	for _, rec := range result.Records {
		if rec.IsDegraded() {
			report.Degraded++
		}
	}

	agg, err := aggregate.New(a.store, a.clock, aggregate.Config{
		Prefix:           a.cfg.Output.Prefix,
		UseDatetimeStamp: a.cfg.Output.UseDatetimeStamp,
		Format:           a.cfg.Output.Format,
		Topic:            a.cfg.PubSub.TopicName,
	},
		aggregate.WithHasher(sha256.New()),
		aggregate.WithPublisher(a.publisher),
		aggregate.WithCatalog(a.catalog),
		aggregate.WithLogger(logger.Named("aggregate")),
	)
	if err != nil {
		a.finish(runID, start, progress.StageBatchError, err.Error(), report.Degraded)
		return report, fmt.Errorf("run batch: %w", err)
	}

	uri, err := agg.Write(context.WithoutCancel(ctx), result)
	report.Duration = a.clock.Now().Sub(start)
	if err != nil {
		logger.Error("batch output lost",
			zap.Int("records", report.Records),
			zap.Error(err),
		)
		a.finish(runID, start, progress.StageBatchError, err.Error(), report.Degraded)
		return report, err
	}
	report.URI = uri
	a.finish(runID, start, progress.StageBatchDone, uri, report.Degraded)

	logger.Info("batch finished",
		zap.String("uri", uri),
		zap.Int("records", report.Records),
		zap.Int("degraded", report.Degraded),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (a *App) finish(runID [16]byte, start time.Time, stage progress.Stage, note string, degraded int) {
	now := a.clock.Now()
	dur := now.Sub(start)
	if dur < 0 {
		dur = 0
	}
	a.hub.Emit(progress.Event{RunID: runID, TS: now, Stage: stage, Dur: dur, Note: note, Degraded: degraded})
	if stage == progress.StageBatchDone {
		metrics.ObserveBatch("success")
		return
	}
	metrics.ObserveBatch("error")
}

// Close drains the progress hub and releases the catalog and publisher.
func (a *App) Close() {
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("close progress hub failed", zap.Error(err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

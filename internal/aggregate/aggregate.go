// Package aggregate orders batch records and writes them out as a single
// artifact, then fans the result out to optional downstream collaborators.
package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/filmmeta/internal/crawler"
	"github.com/JakeFAU/filmmeta/internal/metrics"
)

// Timestamp layouts used in output file names.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02_15-04"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config names and formats the output artifact.
type Config struct {
	Prefix           string
	UseDatetimeStamp bool
	Format           string
	// Topic receives the batch notification when a Publisher is attached.
	Topic string
}

// Notification is published once the output artifact is written.
type Notification struct {
	RunID       string    `json:"run_id"`
	URI         string    `json:"uri"`
	Format      string    `json:"format"`
	Count       int       `json:"count"`
	Degraded    int       `json:"degraded"`
	SHA256      string    `json:"sha256,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Aggregator writes finalized batches.
type Aggregator struct {
	cfg       Config
	store     crawler.BlobStore
	clock     crawler.Clock
	hasher    crawler.Hasher
	publisher crawler.Publisher
	catalog   crawler.CatalogStore
	logger    *zap.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithHasher records a checksum of the written artifact.
func WithHasher(h crawler.Hasher) Option {
	return func(a *Aggregator) { a.hasher = h }
}

// WithPublisher announces each written batch.
func WithPublisher(p crawler.Publisher) Option {
	return func(a *Aggregator) { a.publisher = p }
}

// WithCatalog hands every fully extracted record to the catalog.
func WithCatalog(c crawler.CatalogStore) Option {
	return func(a *Aggregator) { a.catalog = c }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New validates cfg and builds an Aggregator.
func New(store crawler.BlobStore, clock crawler.Clock, cfg Config, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		return nil, fmt.Errorf("output prefix is required")
	}
	switch cfg.Format {
	case "":
		cfg.Format = FormatJSON
	case FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format %q", cfg.Format)
	}
	a := &Aggregator{cfg: cfg, store: store, clock: clock, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Finalize returns the batch with records stably sorted by title. The input
// slice is not modified.
func Finalize(runID string, records []crawler.MediaRecord) crawler.BatchResult {
	sorted := make([]crawler.MediaRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Title < sorted[j].Title
	})
	return crawler.BatchResult{RunID: runID, Records: sorted}
}

// FileName returns <prefix>_<timestamp>.<ext> for t.
func (a *Aggregator) FileName(t time.Time) string {
	layout := DateLayout
	if a.cfg.UseDatetimeStamp {
		layout = DateTimeLayout
	}
	return fmt.Sprintf("%s_%s.%s", a.cfg.Prefix, t.Format(layout), a.cfg.Format)
}

// Write serializes result and stores it with a single PutObject call. Marshal
// and store failures are returned as *crawler.IOError. Publisher and catalog
// failures are logged; the artifact is already durable at that point.
func (a *Aggregator) Write(ctx context.Context, result crawler.BatchResult) (string, error) {
	name := a.FileName(a.clock.Now())

	payload, contentType, err := a.encode(result.Records)
	if err != nil {
		return "", &crawler.IOError{Path: name, Err: err}
	}

	var digest string
	if a.hasher != nil {
		if digest, err = a.hasher.Hash(payload); err != nil {
			a.logger.Warn("hash output failed", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}

	uri, err := a.store.PutObject(ctx, name, contentType, bytes.NewReader(payload))
	if err != nil {
		return "", &crawler.IOError{Path: name, Err: err}
	}
	a.logger.Info("batch output written",
		zap.String("run_id", result.RunID),
		zap.String("uri", uri),
		zap.Int("records", len(result.Records)),
		zap.Int("bytes", len(payload)),
	)

	a.sendToCatalog(ctx, result)
	a.notify(ctx, result, uri, digest)
	return uri, nil
}

func (a *Aggregator) encode(records []crawler.MediaRecord) ([]byte, string, error) {
	if records == nil {
		records = []crawler.MediaRecord{}
	}
	switch a.cfg.Format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return nil, "", fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, "", fmt.Errorf("encode yaml: %w", err)
		}
		return buf.Bytes(), "application/yaml", nil
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return nil, "", fmt.Errorf("encode json: %w", err)
		}
		return buf.Bytes(), "application/json", nil
	}
}

// sendToCatalog creates rows for records that carry extracted metadata.
// Degraded records are skipped so a later successful scrape can still claim
// the url.
func (a *Aggregator) sendToCatalog(ctx context.Context, result crawler.BatchResult) {
	if a.catalog == nil {
		return
	}
	var created, existing, skipped, failed int
	for _, rec := range result.Records {
		if rec.IsDegraded() {
			skipped++
			metrics.ObserveCatalogWrite("skipped")
			continue
		}
		ok, err := a.catalog.CreateIfAbsent(ctx, rec)
		switch {
		case err != nil:
			failed++
			metrics.ObserveCatalogWrite("error")
			a.logger.Warn("catalog write failed",
				zap.String("run_id", result.RunID),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
		case ok:
			created++
			metrics.ObserveCatalogWrite("created")
		default:
			existing++
			metrics.ObserveCatalogWrite("exists")
		}
	}
	a.logger.Info("catalog updated",
		zap.String("run_id", result.RunID),
		zap.Int("created", created),
		zap.Int("existing", existing),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
}

func (a *Aggregator) notify(ctx context.Context, result crawler.BatchResult, uri, digest string) {
	if a.publisher == nil {
		return
	}
	degraded := 0
	for _, rec := range result.Records {
		if rec.IsDegraded() {
			degraded++
		}
	}
	note := Notification{
		RunID:       result.RunID,
		URI:         uri,
		Format:      a.cfg.Format,
		Count:       len(result.Records),
		Degraded:    degraded,
		SHA256:      digest,
		CompletedAt: a.clock.Now(),
	}
	id, err := a.publisher.Publish(ctx, a.cfg.Topic, note)
	if err != nil {
		a.logger.Warn("publish batch notification failed", zap.String("run_id", result.RunID), zap.Error(err))
		return
	}
	a.logger.Debug("batch notification published", zap.String("run_id", result.RunID), zap.String("message_id", id))
}

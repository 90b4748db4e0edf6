// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/filmmeta/internal/crawler"
	"github.com/JakeFAU/filmmeta/internal/metrics"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout   = 10 * time.Second
	DefaultDelayMin  = 250 * time.Millisecond
	DefaultDelayMax  = 750 * time.Millisecond
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	DelayMin  time.Duration
	DelayMax  time.Duration
}

// Waiter gates requests per host. *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher implements crawler.Fetcher using the Colly collector. Each call
// sleeps a random politeness delay, performs one GET and parses the body.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	pause         pauseController
	jitter        jitterSource
	limiter       Waiter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter adds a per-host rate limit in front of every request.
func WithLimiter(w Waiter) Option {
	return func(f *Fetcher) { f.limiter = w }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	cfg = withDefaults(cfg)

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.UserAgent = cfg.UserAgent
	// The backend is shared by clones, so transport and timeout are set once here.
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	f := &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		pause:         &timerPauseController{},
		jitter:        cryptoJitter{},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func withDefaults(cfg Config) Config {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DelayMin == 0 && cfg.DelayMax == 0 {
		cfg.DelayMin, cfg.DelayMax = DefaultDelayMin, DefaultDelayMax
	}
	if cfg.DelayMin < 0 {
		cfg.DelayMin = 0
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	return cfg
}

// Fetch waits the politeness delay, GETs rawURL and parses the HTML.
// Failures are returned as *crawler.FetchError; nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Document, error) {
	delay := f.jitter.Between(f.cfg.DelayMin, f.cfg.DelayMax)
	metrics.ObservePolitenessDelay(delay)
	f.pause.Pause(ctx, delay)
	if err := ctx.Err(); err != nil {
		return crawler.Document{}, f.fail(rawURL, classify(0, err))
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return crawler.Document{}, f.fail(rawURL, classify(0, err))
		}
	}

	var (
		result   page
		status   int
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &result, &status, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		if ctx.Err() != nil {
			// The visit goroutine may still be writing status.
			return crawler.Document{}, f.fail(rawURL, classify(0, err))
		}
		return crawler.Document{}, f.fail(rawURL, classify(status, err))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.body))
	if err != nil {
		return crawler.Document{}, f.fail(rawURL, &crawler.FetchError{Kind: crawler.FetchErrorParse, Err: err})
	}

	duration := time.Since(start)
	metrics.ObserveFetch(rawURL, duration, len(result.body))
	f.logger.Debug("fetched page",
		zap.String("url", rawURL),
		zap.Int("status", result.status),
		zap.Int("bytes", len(result.body)),
		zap.Duration("delay", delay),
		zap.Duration("duration", duration),
	)
	return crawler.Document{
		URL:        result.url,
		StatusCode: result.status,
		Duration:   duration,
		Bytes:      len(result.body),
		Doc:        doc,
	}, nil
}

type page struct {
	url    string
	status int
	body   []byte
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	result *page,
	status *int,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
		*result = page{
			url:    r.Request.URL.String(),
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) fail(rawURL string, fe *crawler.FetchError) *crawler.FetchError {
	fe.URL = rawURL
	metrics.ObserveFetchError(string(fe.Kind))
	f.logger.Debug("fetch failed",
		zap.String("url", rawURL),
		zap.String("kind", string(fe.Kind)),
		zap.Int("status", fe.StatusCode),
		zap.Error(fe.Err),
	)
	return fe
}

// classify maps a transport outcome onto a FetchError kind. Any response
// other than 200 that reached OnError is a status failure; colly rejects
// everything from 203 up.
func classify(status int, err error) *crawler.FetchError {
	if status != 0 && status != http.StatusOK {
		return &crawler.FetchError{Kind: crawler.FetchErrorStatus, StatusCode: status, Err: err}
	}
	if isTimeout(err) {
		return &crawler.FetchError{Kind: crawler.FetchErrorTimeout, StatusCode: status, Err: err}
	}
	return &crawler.FetchError{Kind: crawler.FetchErrorNetwork, StatusCode: status, Err: err}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Package app wires the crawl pipeline together and runs one batch crawl.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/clock/system"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/config"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/directory"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/jadwal-sholat-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/id/uuid"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/metrics"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/policy/backoff"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/queue/memory"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/retention"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/schedule"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/snapshot"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/storage/gcs"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/storage/local"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/worker"
)

const pushTimeout = 10 * time.Second

// Option customizes App construction.
type Option func(*options)

type options struct {
	fs      afero.Fs
	clock   crawler.Clock
	fetcher crawler.Fetcher
	mirror  crawler.Mirror
	ids     crawler.IDGenerator
}

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithClock replaces the wall clock.
func WithClock(c crawler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithMirror replaces the GCS mirror configured by storage.gcs_bucket.
func WithMirror(m crawler.Mirror) Option {
	return func(o *options) { o.mirror = m }
}

// WithIDGenerator replaces the run ID generator.
func WithIDGenerator(g crawler.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// App holds the long-lived services of one crawler process.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	clock      crawler.Clock
	ids        crawler.IDGenerator
	fetcher    crawler.Fetcher
	retrier    *backoff.Retrier
	resolver   *directory.Resolver
	extractor  *snapshot.Extractor
	normalizer *schedule.Normalizer
	store      *local.Store
	sweeper    *retention.Sweeper
	mirror     crawler.Mirror
	gcsClient  *storage.Client
}

// NewApp builds every service from cfg. It fails fast when the output root or
// the mirror cannot be set up.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	metrics.Init()

	a := &App{
		cfg:        cfg,
		logger:     logger,
		clock:      o.clock,
		ids:        o.ids,
		fetcher:    o.fetcher,
		mirror:     o.mirror,
		retrier:    backoff.New(backoff.Config{Retries: cfg.HTTP.Retries, Backoff: cfg.Backoff()}, logger),
		resolver:   directory.New(directory.Config{ExcludeSlugs: cfg.Crawler.ExcludeSlugs}),
		extractor:  snapshot.New(cfg.Crawler.SnapshotAttr),
		normalizer: schedule.New(logger),
	}
	if a.clock == nil {
		a.clock = system.New(cfg.Location())
	}
	if a.ids == nil {
		a.ids = uuid.New()
	}
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.Timeout(),
			Limiter:       ratelimit.New(ratelimit.Config{DefaultRPS: cfg.HTTP.RateLimitRPS, DefaultBurst: 1}),
		})
	}
	if a.mirror == nil && cfg.Storage.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		m, err := gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create gcs mirror: %w", err)
		}
		a.gcsClient = client
		a.mirror = m
		logger.Info("mirroring to gcs", zap.String("bucket", cfg.Storage.GCSBucket), zap.String("prefix", cfg.Storage.Prefix))
	}

	fs := o.fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	store, err := local.New(fs, local.Config{Root: cfg.Output.Root})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open output root: %w", err)
	}
	a.store = store

	sweeper, err := retention.New(fs, retention.Config{Root: store.Root(), KeepYears: cfg.Retention.KeepYears}, a.mirror, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create sweeper: %w", err)
	}
	a.sweeper = sweeper

	return a, nil
}

// Run performs one crawl: resolve cities, process every unit, then sweep.
// Per-unit failures are reported in the Summary; only listing resolution,
// output reset, and queue failures return an error.
func (a *App) Run(ctx context.Context) (crawler.Summary, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return crawler.Summary{}, fmt.Errorf("run id: %w", err)
	}
	mode := a.cfg.Mode()
	started := a.clock.Now()
	summary := crawler.Summary{RunID: runID, Mode: mode, Started: started}
	logger := a.logger.With(zap.String("run_id", runID), zap.String("mode", string(mode)))

	if a.cfg.Output.Reset {
		removed, err := a.store.Reset(ctx)
		if err != nil {
			return summary, fmt.Errorf("reset output: %w", err)
		}
		logger.Info("output reset", zap.String("root", a.store.Root()), zap.Int("removed", removed))
	}

	cities, err := a.resolveCities(ctx, logger)
	if err != nil {
		logger.Error("city resolution failed", zap.Error(err))
		return summary, err
	}
	summary.Cities = len(cities)

	periods := crawler.TargetPeriods(mode, started, a.cfg.Crawler.LookaheadMonths)
	units := crawler.BuildUnits(cities, periods)
	summary.Units = len(units)
	logger.Info("crawl starting",
		zap.Int("cities", len(cities)),
		zap.Int("periods", len(periods)),
		zap.Int("units", len(units)),
		zap.Int("workers", a.cfg.Crawler.Workers),
	)

	results, err := a.dispatch(ctx, runID, units, logger)
	for _, r := range results {
		summary.Add(r)
	}
	if err != nil {
		return summary, fmt.Errorf("dispatch: %w", err)
	}

	if ctx.Err() == nil {
		report, err := a.sweeper.Sweep(ctx)
		if err != nil {
			logger.Warn("retention sweep failed", zap.Error(err))
		}
		summary.PrunedYears = len(report.Pruned)
	}

	summary.Duration = a.clock.Now().Sub(started)
	metrics.ObserveRun(started.Add(summary.Duration), summary.Duration, summary.Cities)
	a.pushMetrics(logger, mode)
	logSummary(logger, summary)
	return summary, nil
}

// Sweep runs the retention sweeper on its own.
func (a *App) Sweep(ctx context.Context) (retention.Report, error) {
	report, err := a.sweeper.Sweep(ctx)
	if err != nil {
		return report, fmt.Errorf("sweep: %w", err)
	}
	a.logger.Info("retention sweep finished",
		zap.Int("cities", report.Cities),
		zap.Int("pruned_years", len(report.Pruned)),
		zap.Int("mirror_objects", report.MirrorObjects),
	)
	return report, nil
}

// Close releases external clients and flushes the logger.
func (a *App) Close() {
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
	}
	// Sync fails on non-syncable outputs such as a terminal stderr.
	_ = a.logger.Sync()
}

func (a *App) resolveCities(ctx context.Context, logger *zap.Logger) ([]crawler.CityID, error) {
	listing := crawler.ListingURL(a.cfg.BaseURL(), a.cfg.Crawler.ListingPath)

	var resp crawler.FetchResponse
	err := a.retrier.Do(ctx, "listing", func(ctx context.Context) error {
		r, err := a.fetcher.Fetch(ctx, listing)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrListingUnavailable, err)
	}

	cities, err := a.resolver.Resolve(listing, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrListingUnavailable, err)
	}
	if len(cities) == 0 {
		return nil, fmt.Errorf("%w: %s", crawler.ErrNoCities, listing)
	}
	logger.Info("cities resolved", zap.String("listing", listing), zap.Int("count", len(cities)))
	return cities, nil
}

func (a *App) dispatch(ctx context.Context, runID string, units []crawler.Unit, logger *zap.Logger) ([]crawler.Result, error) {
	deps := worker.Deps{
		Fetcher:    a.fetcher,
		Retrier:    a.retrier,
		Extractor:  a.extractor,
		Normalizer: a.normalizer,
		Store:      a.store,
		Mirror:     a.mirror,
		Clock:      a.clock,
	}
	wcfg := worker.Config{
		BaseURL: a.cfg.BaseURL(),
		Policy:  a.cfg.Mode().WritePolicy(),
		Delay:   a.cfg.Delay(),
		RunID:   runID,
	}
	runners := make([]dispatcher.Runner, a.cfg.Crawler.Workers)
	for i := range runners {
		runners[i] = worker.New(deps, wcfg, logger)
	}
	return dispatcher.New(memory.NewQueue(a.cfg.Crawler.QueueDepth), runners).Run(ctx, units)
}

func (a *App) pushMetrics(logger *zap.Logger, mode crawler.Mode) {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	// The run context may already be canceled; metrics still go out.
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := metrics.Push(ctx, url, a.cfg.Metrics.Job, string(mode)); err != nil {
		logger.Warn("metrics push failed", zap.String("url", url), zap.Error(err))
		return
	}
	logger.Debug("metrics pushed", zap.String("url", url))
}

func logSummary(logger *zap.Logger, s crawler.Summary) {
	fields := []zap.Field{
		zap.Int("cities", s.Cities),
		zap.Int("units", s.Units),
		zap.Int("written", s.Written),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int("canceled", s.Canceled),
		zap.Int("pruned_years", s.PrunedYears),
		zap.Duration("duration", s.Duration),
	}
	for kind, n := range s.FailuresByKind {
		fields = append(fields, zap.Int("failed_"+string(kind), n))
	}
	logger.Info("crawl finished", fields...)
}

// IsFatal reports whether err should end the process with a non-zero status.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

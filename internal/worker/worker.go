// Package worker implements the per-unit crawl pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/metrics"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/schedule"
)

const contentType = "application/json"

// Config controls Worker behavior.
type Config struct {
	// BaseURL is the normalized upstream base URL.
	BaseURL string
	Policy  crawler.WritePolicy
	// Delay is the politeness pause after each unit that touched the network.
	Delay time.Duration
	RunID string
}

// Deps bundles the collaborators a Worker drives. Mirror is optional.
type Deps struct {
	Fetcher    crawler.Fetcher
	Retrier    crawler.Retrier
	Extractor  crawler.SnapshotExtractor
	Normalizer crawler.Normalizer
	Store      crawler.ScheduleStore
	Mirror     crawler.Mirror
	Clock      crawler.Clock
}

// Worker turns one (city, period) unit into at most one schedule file.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("worker"),
	}
}

// Run consumes units until the queue is drained or ctx is done, handing every
// result to sink. Units already dequeued always produce a result.
func (w *Worker) Run(ctx context.Context, queue crawler.Queue, sink func(crawler.Result)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		unit, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		sink(w.Process(ctx, unit))
	}
}

// Process runs fetch, extract, normalize, and write for one unit. Failures are
// reported in the Result and never returned.
func (w *Worker) Process(ctx context.Context, unit crawler.Unit) crawler.Result {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := w.now()
	logger := w.logger.With(
		zap.String("run_id", w.cfg.RunID),
		zap.String("city", string(unit.City)),
		zap.String("period", unit.Period.String()),
	)

	res, touchedNetwork := w.process(ctx, unit, logger)
	res.Unit = unit
	res.Duration = w.now().Sub(start)
	if res.Err != nil && res.Kind == crawler.KindNone {
		res.Kind = crawler.Classify(res.Err)
	}
	metrics.ObserveUnit(string(res.Outcome), string(res.Kind))

	switch res.Outcome {
	case crawler.OutcomeWritten:
		logger.Info("unit written", zap.String("path", res.Path), zap.Int("records", res.Records), zap.Int("dropped", res.Dropped))
	case crawler.OutcomeSkipped:
		logger.Debug("unit skipped, file exists", zap.String("path", res.Path))
	case crawler.OutcomeCanceled:
		logger.Info("unit canceled")
	default:
		logger.Warn("unit failed", zap.String("kind", string(res.Kind)), zap.Error(res.Err))
	}

	if touchedNetwork {
		crawler.Pause(ctx, w.cfg.Delay)
	}
	return res
}

func (w *Worker) process(ctx context.Context, unit crawler.Unit, logger *zap.Logger) (crawler.Result, bool) {
	if err := ctx.Err(); err != nil {
		return canceled(err), false
	}

	if w.cfg.Policy == crawler.SkipExisting {
		exists, err := w.deps.Store.Exists(unit)
		if err != nil {
			return failed(fmt.Errorf("%w: %v", crawler.ErrWrite, err)), false
		}
		if exists {
			path, _ := w.deps.Store.Path(unit)
			return crawler.Result{Outcome: crawler.OutcomeSkipped, Path: path}, false
		}
	}

	url := crawler.CityURL(w.cfg.BaseURL, unit.City, unit.Period)
	resp, err := w.fetch(ctx, url, logger)
	if err != nil {
		if ctx.Err() != nil {
			return canceled(err), true
		}
		return failed(err), true
	}

	snap, err := w.deps.Extractor.Extract(resp.Body)
	if err != nil {
		return failed(fmt.Errorf("extract %s: %w", url, err)), true
	}

	records, dropped := w.deps.Normalizer.Normalize(snap)
	records, outside := schedule.FilterPeriod(records, unit.Period)
	if outside > 0 {
		logger.Warn("dropped records outside period", zap.Int("count", outside))
	}
	dropped += outside
	if len(records) == 0 {
		res := failed(fmt.Errorf("%w: %s", crawler.ErrEmptySchedule, unit.Period))
		res.Dropped = dropped
		return res, true
	}

	outcome, path, err := w.deps.Store.Write(ctx, unit, records, w.cfg.Policy)
	res := crawler.Result{Outcome: outcome, Path: path, Dropped: dropped, Err: err}
	if err != nil {
		if ctx.Err() != nil {
			res.Outcome = crawler.OutcomeCanceled
		} else {
			res.Outcome = crawler.OutcomeFailed
		}
		return res, true
	}
	if outcome == crawler.OutcomeWritten {
		res.Records = len(records)
		metrics.ObserveRecords(len(records), dropped)
		w.mirror(ctx, unit, logger)
	}
	return res, true
}

func (w *Worker) fetch(ctx context.Context, url string, logger *zap.Logger) (crawler.FetchResponse, error) {
	var resp crawler.FetchResponse
	attempt := 0
	err := w.deps.Retrier.Do(ctx, "fetch", func(ctx context.Context) error {
		attempt++
		r, err := w.deps.Fetcher.Fetch(ctx, url)
		code := r.StatusCode
		if fe, ok := crawler.AsFetchError(err); ok {
			code = fe.Status
		}
		metrics.ObserveFetch(code, r.Duration)
		if err != nil {
			logger.Debug("fetch attempt failed", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	return resp, nil
}

// mirror uploads the freshly written file. Mirror failures never fail the unit.
func (w *Worker) mirror(ctx context.Context, unit crawler.Unit, logger *zap.Logger) {
	if w.deps.Mirror == nil {
		return
	}
	rc, err := w.deps.Store.Open(unit)
	if err != nil {
		metrics.ObserveMirrorError()
		logger.Warn("mirror open failed", zap.Error(err))
		return
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			logger.Debug("close mirrored file", zap.Error(cerr))
		}
	}()
	uri, err := w.deps.Mirror.PutObject(ctx, unit.RelPath(), contentType, rc)
	if err != nil {
		metrics.ObserveMirrorError()
		logger.Warn("mirror upload failed", zap.Error(err))
		return
	}
	logger.Debug("mirrored", zap.String("uri", uri))
}

func (w *Worker) now() time.Time {
	if w.deps.Clock == nil {
		return time.Now()
	}
	return w.deps.Clock.Now()
}

func failed(err error) crawler.Result {
	return crawler.Result{Outcome: crawler.OutcomeFailed, Kind: crawler.Classify(err), Err: err}
}

func canceled(err error) crawler.Result {
	return crawler.Result{Outcome: crawler.OutcomeCanceled, Kind: crawler.KindCanceled, Err: err}
}

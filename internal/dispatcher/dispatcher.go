// Package dispatcher fans crawl units out to a bounded pool of workers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

// Queue is the unit queue shared by the producer and the workers.
type Queue interface {
	crawler.Queue
	Close()
}

// Runner drains a queue, reporting one result per dequeued unit.
type Runner interface {
	Run(ctx context.Context, queue crawler.Queue, sink func(crawler.Result)) error
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   Queue
	workers []Runner
}

// New creates a Dispatcher. At most len(workers) units are in flight at once.
func New(queue Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run enqueues units and blocks until every worker has returned. The result
// slice has one entry per unit, in input order; units no worker started are
// reported as canceled.
func (d *Dispatcher) Run(ctx context.Context, units []crawler.Unit) ([]crawler.Result, error) {
	if len(d.workers) == 0 {
		return nil, fmt.Errorf("dispatcher has no workers")
	}

	var (
		mu      sync.Mutex
		results = make(map[crawler.Unit]crawler.Result, len(units))
	)
	sink := func(r crawler.Result) {
		mu.Lock()
		results[r.Unit] = r
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(d.workers) + 1)

	g.Go(func() error {
		defer d.queue.Close()
		for _, u := range units {
			if err := d.queue.Enqueue(gctx, u); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("queue enqueue: %w", err)
			}
		}
		return nil
	})

	for _, w := range d.workers {
		w := w
		g.Go(func() error {
			return w.Run(gctx, d.queue, sink)
		})
	}

	err := g.Wait()

	out := make([]crawler.Result, 0, len(units))
	for _, u := range units {
		if r, ok := results[u]; ok {
			out = append(out, r)
			continue
		}
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		out = append(out, crawler.Result{
			Unit:    u,
			Outcome: crawler.OutcomeCanceled,
			Kind:    crawler.KindCanceled,
			Err:     fmt.Errorf("unit not started: %w", cause),
		})
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return out, err
	}
	return out, nil
}

package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
	"github.com/JakeFAU/jadwal-sholat-crawler/internal/queue/memory"
)

// slowRunner processes units one at a time with a fixed delay, tracking how
// many units are in flight across all runners.
type slowRunner struct {
	delay    time.Duration
	inFlight *atomic.Int32
	maxSeen  *atomic.Int32
	onUnit   func()
}

func (r *slowRunner) Run(ctx context.Context, q crawler.Queue, sink func(crawler.Result)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		u, err := q.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		n := r.inFlight.Add(1)
		for {
			m := r.maxSeen.Load()
			if n <= m || r.maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(r.delay)
		r.inFlight.Add(-1)
		if r.onUnit != nil {
			r.onUnit()
		}
		sink(crawler.Result{Unit: u, Outcome: crawler.OutcomeWritten})
	}
}

func units(n int) []crawler.Unit {
	out := make([]crawler.Unit, 0, n)
	p := crawler.Period{Year: 2024, Month: time.January}
	for i := 0; i < n; i++ {
		out = append(out, crawler.Unit{City: "brebes", Period: p})
		p = p.Next()
	}
	return out
}

func runners(n int, delay time.Duration, onUnit func()) ([]Runner, *atomic.Int32) {
	inFlight, maxSeen := &atomic.Int32{}, &atomic.Int32{}
	out := make([]Runner, n)
	for i := range out {
		out[i] = &slowRunner{delay: delay, inFlight: inFlight, maxSeen: maxSeen, onUnit: onUnit}
	}
	return out, maxSeen
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	t.Parallel()

	workers, maxSeen := runners(3, 10*time.Millisecond, nil)
	d := New(memory.NewQueue(1), workers)

	work := units(12)
	results, err := d.Run(context.Background(), work)
	require.NoError(t, err)
	require.Len(t, results, 12)
	for i, r := range results {
		require.Equal(t, work[i], r.Unit, "results keep input order")
		require.Equal(t, crawler.OutcomeWritten, r.Outcome)
	}
	require.LessOrEqual(t, maxSeen.Load(), int32(3))
	require.GreaterOrEqual(t, maxSeen.Load(), int32(1))
}

func TestDispatcherCancelReportsUnstartedUnits(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	workers, _ := runners(2, 5*time.Millisecond, func() { once.Do(cancel) })
	d := New(memory.NewQueue(0), workers)

	results, err := d.Run(ctx, units(24))
	require.NoError(t, err)
	require.Len(t, results, 24)

	var written, canceled int
	for _, r := range results {
		switch r.Outcome {
		case crawler.OutcomeWritten:
			written++
		case crawler.OutcomeCanceled:
			canceled++
			require.ErrorIs(t, r.Err, context.Canceled)
		}
	}
	require.Positive(t, written)
	require.Positive(t, canceled)
	require.Equal(t, 24, written+canceled)
}

func TestDispatcherRequiresWorkers(t *testing.T) {
	t.Parallel()

	_, err := New(memory.NewQueue(1), nil).Run(context.Background(), units(1))
	require.Error(t, err)
}

func TestDispatcherEmptyUnits(t *testing.T) {
	t.Parallel()

	workers, _ := runners(2, 0, nil)
	results, err := New(memory.NewQueue(1), workers).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Failures are
// reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Queue provides enqueue/dequeue semantics for crawl units.
type Queue interface {
	Enqueue(ctx context.Context, unit Unit) error
	Dequeue(ctx context.Context) (Unit, error)
}

// Retrier re-runs fn while it fails with a retryable error.
type Retrier interface {
	Do(ctx context.Context, op string, fn func(context.Context) error) error
}

// SnapshotExtractor lifts the embedded snapshot out of page markup.
type SnapshotExtractor interface {
	Extract(body []byte) (Snapshot, error)
}

// Normalizer converts a snapshot into date-sorted records and reports how
// many rows it dropped.
type Normalizer interface {
	Normalize(snap Snapshot) ([]ScheduleRecord, int)
}

// ScheduleStore persists one schedule file per unit.
type ScheduleStore interface {
	Path(unit Unit) (string, error)
	Exists(unit Unit) (bool, error)
	Write(ctx context.Context, unit Unit, records []ScheduleRecord, policy WritePolicy) (Outcome, string, error)
	Open(unit Unit) (io.ReadCloser, error)
}

// Limiter throttles outbound requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Mirror replicates written schedule files to an object store.
type Mirror interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Per-unit failure sentinels. Extraction errors wrap these so callers can use errors.Is.
var (
	ErrNoSnapshot     = errors.New("no snapshot in page")
	ErrDecode         = errors.New("snapshot decode failed")
	ErrSchemaMismatch = errors.New("snapshot schema mismatch")
	ErrDateParse      = errors.New("unparsable schedule date")
	ErrEmptySchedule  = errors.New("no schedule records for period")
	ErrWrite          = errors.New("write schedule file")
)

// ErrQueueClosed reports that a queue has been closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Run-fatal sentinels.
var (
	ErrListingUnavailable = errors.New("city listing unavailable")
	ErrNoCities           = errors.New("no cities resolved from listing")
)

// FetchError reports a network failure, timeout, or non-2xx response.
type FetchError struct {
	URL    string
	Status int
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.Status, e.Reason)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed. Transport failures
// and 429/5xx responses are treated as transient.
func (e *FetchError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// AsFetchError unwraps err into a *FetchError when possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable fetch failure.
func IsRetryable(err error) bool {
	fe, ok := AsFetchError(err)
	return ok && fe.Retryable()
}

// ErrorKind is the coarse failure class used for summaries and metrics.
type ErrorKind string

// Failure classes.
const (
	KindNone          ErrorKind = ""
	KindFetch         ErrorKind = "fetch"
	KindNoSnapshot    ErrorKind = "no_snapshot"
	KindDecode        ErrorKind = "decode"
	KindSchema        ErrorKind = "schema_mismatch"
	KindEmptySchedule ErrorKind = "empty_schedule"
	KindWrite         ErrorKind = "write"
	KindCanceled      ErrorKind = "canceled"
	KindOther         ErrorKind = "other"
)

// Classify maps a unit error onto its failure class.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrNoSnapshot):
		return KindNoSnapshot
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrSchemaMismatch):
		return KindSchema
	case errors.Is(err, ErrEmptySchedule):
		return KindEmptySchedule
	case errors.Is(err, ErrWrite):
		return KindWrite
	}
	if _, ok := AsFetchError(err); ok {
		return KindFetch
	}
	return KindOther
}

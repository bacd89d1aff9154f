package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/mork-fetch/fetchd/internal/token"
)

// ---------------------------------------------------------------------------
// Token Source Adapter — one per upstream catalog/API
// ---------------------------------------------------------------------------

// Adapter is the unified interface for all token discovery sources.
// The pipeline never knows which upstream API it is talking to.
type Adapter interface {
	// Name returns the source tag (e.g. "pumpfun", "dexscreener").
	Name() string

	// Fetch returns up to limit recently listed candidate records.
	// Failures are reported as *Error so the orchestrator can distinguish
	// rate limits from hard outages.
	Fetch(ctx context.Context, limit int) ([]token.RawToken, error)

	// Lookup fetches a single token by mint address. Returns nil, nil when
	// the source does not know the mint.
	Lookup(ctx context.Context, mint string) (*token.RawToken, error)
}

// ErrorKind classifies a source failure.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "RATE_LIMITED" // caller should back off and retry
	KindTimeout     ErrorKind = "TIMEOUT"      // per-call deadline exceeded
	KindMalformed   ErrorKind = "MALFORMED"    // payload did not parse
	KindUnavailable ErrorKind = "UNAVAILABLE"  // upstream down or refusing
)

// Error is a classified per-source failure. Always contained at the call
// site: it converts into a retry or a skipped contribution, never a panic.
type Error struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source %s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified source error.
func NewError(src string, kind ErrorKind, err error) *Error {
	return &Error{Source: src, Kind: kind, Err: err}
}

// Classify extracts the *Error from err, wrapping unclassified errors as
// UNAVAILABLE so the orchestrator always has a kind to report.
func Classify(src string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(src, KindTimeout, err)
	}
	return NewError(src, KindUnavailable, err)
}

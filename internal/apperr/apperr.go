// Package apperr defines the error kinds shared by the GitHub client, the
// generation providers and the analysis pipeline.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindUnknown             Kind = ""
	KindNotFound            Kind = "not_found"
	KindAccessDenied        Kind = "access_denied"
	KindRateLimited         Kind = "rate_limited"
	KindTransport           Kind = "transport"
	KindMalformed           Kind = "malformed"
	KindGeneration          Kind = "generation"
	KindParse               Kind = "parse"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
)

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	// RetryAfter is the server-requested delay, if any.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// Retryable reports whether err is a rate-limit or transient transport
// failure. NotFound and AccessDenied are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransport:
		return true
	default:
		return false
	}
}

// RetryAfter returns the server-requested delay carried by err, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

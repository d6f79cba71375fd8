// Package apierr defines the error taxonomy shared by the chat client, the
// issue-tracker client, and the cache layer. Per-item failures (one user,
// one thread, one ticket) are classified so callers can warn-and-drop;
// whole-call failures surface to the caller unchanged.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry and propagation policy.
type Kind int

const (
	// KindFatal is the default for unclassified failures.
	KindFatal Kind = iota
	// KindConfig marks startup configuration problems (missing token, bad file).
	KindConfig
	// KindAuth marks 401/403 responses. Never retried.
	KindAuth
	// KindNotFound marks 404-shaped responses. Warn and skip the item.
	KindNotFound
	// KindRetryable marks 429 and 5xx responses. Callers may back off and
	// retry; the clients themselves never do.
	KindRetryable
	// KindCancelled marks context cancellation or deadline expiry.
	KindCancelled
	// KindIO marks filesystem failures. Fatal to the current partition only.
	KindIO
	// KindSchema marks rows violating required-field invariants. A bug.
	KindSchema
)

// String returns the kind's log token.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindRetryable:
		return "retryable"
	case KindCancelled:
		return "cancelled"
	case KindIO:
		return "io"
	case KindSchema:
		return "schema"
	default:
		return "fatal"
	}
}

// Error is a classified failure. Entity names the affected item
// (user=U…, thread=…, ticket=ABC-123) for warning lines.
type Error struct {
	Kind       Kind
	Op         string
	Entity     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Entity != "" {
		msg += " " + e.Entity
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op, entity string, err error) *Error {
	return &Error{Kind: kind, Op: op, Entity: entity, Err: err}
}

// KindOf classifies any error, unwrapping as needed. Context cancellation
// is recognized wherever it appears in the chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindFatal
}

// IsRetryable reports whether callers may retry with backoff.
func IsRetryable(err error) bool { return KindOf(err) == KindRetryable }

// IsNotFound reports whether the affected item should be skipped.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// RetryAfterOf returns the server-advised backoff, if the chain carries one.
func RetryAfterOf(err error) (time.Duration, bool) {
	var ae *Error
	if errors.As(err, &ae) && ae.RetryAfter > 0 {
		return ae.RetryAfter, true
	}
	return 0, false
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package retry runs outbound calls under a bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy describes how often and how patiently a call is retried.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// When nil, only errors wrapped with Transient are retried.
	Retryable func(error) bool
}

// DefaultPolicy returns three attempts starting at 500ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// WithRetryable returns a copy of p using fn to classify errors.
func (p Policy) WithRetryable(fn func(error) bool) Policy {
	p.Retryable = fn
	return p
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. It returns the number of calls made.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) (int, error) {
	attempts := 0
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err != nil && p.retryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
	return attempts, err
}

func (p Policy) backoff() goretry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := goretry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = goretry.WithCappedDuration(p.MaxDelay, b)
	}
	retries := max(p.MaxAttempts, 1) - 1
	return goretry.WithMaxRetries(uint64(retries), b) //nolint:gosec // retries is never negative
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Package retry reruns operations that fail transiently, backing off
// exponentially between attempts. Which errors deserve another attempt is
// part of the policy: callers hand in a classifier once instead of marking
// errors at every call site.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy controls how an operation is retried.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// RetryIf classifies an error as transient. Nil retries every error.
	RetryIf func(error) bool
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt ceiling.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) { p.MaxAttempts = n }
}

// WithInitialDelay sets the pause after the first failed attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) { p.InitialDelay = d }
}

// WithMaxDelay caps the pause between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) { p.MaxDelay = d }
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) Option {
	return func(p *Policy) { p.Multiplier = m }
}

// WithRetryIf sets the transient-error classifier.
func WithRetryIf(classify func(error) bool) Option {
	return func(p *Policy) { p.RetryIf = classify }
}

// Do runs the operation under the policy until it succeeds, fails with an
// error the classifier rules out, exhausts its attempts, or the context is
// cancelled. Classified-out errors are returned as-is so callers can still
// inspect them.
func Do(ctx context.Context, operation func() error, opts ...Option) error {
	p := Policy{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
	for _, opt := range opts {
		opt(&p)
	}

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if p.RetryIf != nil && !p.RetryIf(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return fmt.Errorf("failed after %d attempts: %w", attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-time.After(p.backoff(attempt)):
		}
	}
}

// backoff returns the pause after the given attempt, growing geometrically
// from the initial delay up to the cap.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

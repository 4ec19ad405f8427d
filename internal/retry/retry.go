// Package retry runs fallible I/O with exponential backoff bounded by a total time budget.
//
// Operations report how they failed through an explicit Outcome rather than through
// error types, so the loop below only has to switch on three states.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultInitialDelay = 5 * time.Second
	DefaultBudget       = 300 * time.Second
)

var ErrInterrupted = errors.New("retry backoff interrupted")

type outcomeKind uint8

const (
	outcomeOK outcomeKind = iota
	outcomeRetryable
	outcomeNonRetryable
)

// Outcome is the result of one attempt: a value, a transient failure or a permanent one.
type Outcome[T any] struct {
	kind  outcomeKind
	value T
	err   error
}

func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{kind: outcomeOK, value: value}
}

func Retryable[T any](err error) Outcome[T] {
	return Outcome[T]{kind: outcomeRetryable, err: err}
}

func NonRetryable[T any](err error) Outcome[T] {
	return Outcome[T]{kind: outcomeNonRetryable, err: err}
}

// SleepFunc blocks for d or until ctx is done, returning ctx's error in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier holds backoff policy. It is stateless between calls and safe to share.
type Retrier struct {
	initialDelay time.Duration
	budget       time.Duration
	sleep        SleepFunc
	now          func() time.Time
}

type Option func(*Retrier)

func WithInitialDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialDelay = d
	}
}

// WithBudget caps the total wall-clock time spent across all attempts and backoff sleeps.
func WithBudget(d time.Duration) Option {
	return func(r *Retrier) {
		r.budget = d
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(r *Retrier) {
		if sleep != nil {
			r.sleep = sleep
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Retrier) {
		if now != nil {
			r.now = now
		}
	}
}

func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialDelay: DefaultInitialDelay,
		budget:       DefaultBudget,
		sleep:        Sleep,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sleep is the context-aware SleepFunc used outside tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op until it succeeds, fails permanently, or the next backoff would overrun the budget.
// Permanent failures come back exactly as op returned them. When the budget runs out the last
// transient failure is returned.
func Do[T any](ctx context.Context, r *Retrier, name string, op func(ctx context.Context) Outcome[T]) (T, error) {
	var zero T
	start := r.now()
	delay := r.initialDelay
	for attempt := 1; ; attempt++ {
		out := op(ctx)
		switch out.kind {
		case outcomeOK:
			if attempt > 1 {
				slog.Debug("retry: succeeded", "operation", name, "attempt", attempt)
			}
			return out.value, nil
		case outcomeNonRetryable:
			slog.Debug("retry: permanent failure", "operation", name, "attempt", attempt, "error", out.err)
			return zero, out.err
		}

		elapsed := r.now().Sub(start)
		if elapsed+delay > r.budget {
			slog.Warn("retry: budget exhausted",
				"operation", name,
				"attempts", attempt,
				"elapsed", elapsed,
				"budget", r.budget,
				"error", out.err,
			)
			return zero, out.err
		}
		slog.Info("retry: transient failure, backing off",
			"operation", name,
			"attempt", attempt,
			"delay", delay,
			"error", out.err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s: %w: %w (last failure: %w)", name, ErrInterrupted, err, out.err)
		}
		delay *= 2
	}
}

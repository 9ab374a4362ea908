// Package retry runs an operation under a bounded attempt policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	// Retryable reports whether a failure may be retried. Nil retries everything.
	Retryable func(error) bool
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
	// Sleep waits Delay between attempts. Nil uses a timer that stops early
	// when ctx ends.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when no attempt succeeded.
type ExhaustedError struct {
	Attempts int
	Errors   []error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Last())
}

// Last returns the error of the final attempt.
func (e *ExhaustedError) Last() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

func (e *ExhaustedError) Unwrap() error { return e.Last() }

var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds, the policy runs out of attempts, a failure is
// classified terminal, or ctx is done while waiting between attempts.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	wait := sleep
	if p.Sleep != nil {
		wait = p.Sleep
	}

	exhausted := &ExhaustedError{}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		exhausted.Attempts = attempt
		if err == nil {
			return result, nil
		}
		exhausted.Errors = append(exhausted.Errors, err)

		if p.Retryable != nil && !p.Retryable(err) {
			return zero, exhausted
		}
		if attempt == maxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := wait(ctx, p.Delay); serr != nil {
			exhausted.Errors = append(exhausted.Errors, serr)
			return zero, exhausted
		}
	}
	return zero, exhausted
}

// Attempts reports how many attempts an error returned by Do represents.
func Attempts(err error) int {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	return 0
}

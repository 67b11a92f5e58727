// Package poll provides the single retry-until-deadline primitive that
// every blocking wait in the harness is built on. Duplicated retry loops
// are the main source of flaky cross-node assertions, so all "wait for X"
// operations are thin predicates passed to Until.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsatisfied signals that an attempt ran cleanly but the awaited
// condition has not been met yet. Until absorbs it and retries.
var ErrUnsatisfied = errors.New("condition not satisfied")

// Transient is implemented by errors that mean the endpoint is not
// reachable yet rather than broken.
type Transient interface {
	Transient() bool
}

// TimeoutError reports that the deadline elapsed before the condition
// held. Last carries the most recent failure observed, for diagnostics.
type TimeoutError struct {
	Elapsed time.Duration
	Last    error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %s (last: %v)", e.Elapsed.Round(time.Millisecond), e.Last)
	}
	return fmt.Sprintf("timed out after %s", e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// retryable reports whether an attempt failure should be absorbed and
// retried. Connection-level failures and the ErrUnsatisfied sentinel
// qualify; everything else propagates to the caller unchanged.
func retryable(err error) bool {
	if errors.Is(err, ErrUnsatisfied) {
		return true
	}

	var tr Transient
	return errors.As(err, &tr) && tr.Transient()
}

// Until invokes attempt every interval until it succeeds, a non-retryable
// error occurs, or timeout elapses. Context cancellation aborts the wait
// between attempts.
func Until[T any](ctx context.Context, attempt func() (T, error), interval, timeout time.Duration) (T, error) {
	var zero T
	var last error

	start := time.Now()
	deadline := start.Add(timeout)
	for {
		v, err := attempt()
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return zero, err
		}
		last = err

		if !time.Now().Add(interval).Before(deadline) {
			return zero, &TimeoutError{Elapsed: time.Since(start), Last: last}
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// UntilTrue is the boolean convenience over Until.
func UntilTrue(ctx context.Context, cond func() bool, interval, timeout time.Duration) error {
	_, err := Until(ctx, func() (struct{}, error) {
		if !cond() {
			return struct{}{}, ErrUnsatisfied
		}
		return struct{}{}, nil
	}, interval, timeout)
	return err
}

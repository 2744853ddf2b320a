package util

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultFetchAttempts = 3
	DefaultRetryDelay    = 500 * time.Millisecond
)

// RetryableError marks a failure that may succeed when tried again.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retry calls fn up to attempts times, doubling delay after each failure.
// Only errors wrapping a *RetryableError are retried. A cancelled ctx stops
// the wait and returns the last error.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var err error
	for i := range attempts {
		if err = fn(); err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) || i == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
			delay *= 2
		}
	}
	return err
}

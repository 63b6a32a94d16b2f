// Package retry provides bounded retry with exponential backoff for write-path
// operations that are safe to repeat (eviction deletes, cleanup purges).
// Read-path security decisions must not be retried; callers on those paths
// surface the first error directly.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrRetriesExhausted is returned when every attempt failed. State is as last
// observed; callers must treat this as "unknown, re-check", not "failed".
var ErrRetriesExhausted = errors.New("max retries exceeded")

// Do runs fn up to maxAttempts times with exponential backoff starting at
// baseDelay. The context bounds the whole sequence. On exhaustion the last
// error is wrapped in ErrRetriesExhausted.
func Do(ctx context.Context, maxAttempts uint64, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
	}
	return nil
}

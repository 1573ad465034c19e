package service

import (
	"context"
	"errors"
	"time"

	"github.com/kterrell/tradegate/internal/domain"
)

// fetchAttempts bounds retries of read-only broker fetches. Mutating calls
// are never retried.
const fetchAttempts = 3

// fetchBackoff is the delay between read-only fetch retries.
const fetchBackoff = 200 * time.Millisecond

// fetchRetry runs a read-only broker fetch, retrying a bounded number of
// times on transient failure. Validation, not-found, and broker rejections
// are returned immediately; only network-level errors are retried.
func fetchRetry[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		out T
		err error
	)
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, domain.ErrNotFound) ||
			errors.Is(err, domain.ErrValidation) ||
			errors.Is(err, domain.ErrBroker) ||
			ctx.Err() != nil {
			return out, err
		}

		timer := time.NewTimer(fetchBackoff << attempt)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, ctx.Err()
		case <-timer.C:
		}
	}
	return out, err
}

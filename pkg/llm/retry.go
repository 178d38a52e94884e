// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy is an exponential backoff policy for external calls.
type RetryPolicy struct {
	MaxAttempts int
	Multiplier  float64
	MinWait     time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy matches the summarizer contract: 5 attempts, waits of
// max(4s, multiplier*2^n) capped at 120s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Multiplier:  1,
		MinWait:     4 * time.Second,
		MaxWait:     120 * time.Second,
	}
}

// wait returns the backoff before attempt n (0-based, after the first try).
func (p RetryPolicy) wait(attempt int) time.Duration {
	d := time.Duration(p.Multiplier * float64(time.Second) * float64(int64(1)<<attempt))
	if d < p.MinWait {
		d = p.MinWait
	}
	if d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

// Retry runs fn under the policy, retrying on any error. The last error is
// returned wrapped with the attempt count.
func Retry[T any](ctx context.Context, logger *slog.Logger, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			pause := policy.wait(attempt - 1)
			if logger != nil {
				logger.Warn("llm.retry", "op", op, "attempt", attempt+1, "wait", pause, "err", lastErr)
			}
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, policy.MaxAttempts, lastErr)
}

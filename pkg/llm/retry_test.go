// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Multiplier:  1,
		MinWait:     time.Millisecond,
		MaxWait:     time.Millisecond,
	}
}

// TestRetry_SucceedsAfterFailures verifies transient errors are absorbed.
func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), nil, fastPolicy(5), "op",
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

// TestRetry_ExhaustsAttempts verifies the attempt cap and the wrapped error.
func TestRetry_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Retry(context.Background(), nil, fastPolicy(3), "summarize x",
		func(context.Context) (int, error) {
			calls++
			return 0, boom
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "summarize x failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

// TestRetry_ContextCancelled verifies cancellation wins over the policy.
func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Retry(ctx, nil, fastPolicy(5), "op",
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("failing")
		})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

// TestRetry_CancelDuringBackoff verifies the backoff pause is interruptible.
func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 2, Multiplier: 1, MinWait: time.Minute, MaxWait: time.Minute}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Retry(ctx, nil, policy, "op",
		func(ctx context.Context) (int, error) {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, errors.New("failing")
		})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second, "backoff must not run out the full minute")
}

// TestRetryPolicy_WaitSchedule pins the default backoff contract: 5
// attempts, waits of max(4s, 2^n seconds) capped at 120s.
func TestRetryPolicy_WaitSchedule(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 5, p.MaxAttempts)

	assert.Equal(t, 4*time.Second, p.wait(0))
	assert.Equal(t, 4*time.Second, p.wait(1))
	assert.Equal(t, 4*time.Second, p.wait(2))
	assert.Equal(t, 8*time.Second, p.wait(3))
	assert.Equal(t, 16*time.Second, p.wait(4))
	assert.Equal(t, 120*time.Second, p.wait(10))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures a BackoffExecutor run.
//
// # Description
//
// An operation is attempted under a per-attempt deadline. On failure,
// if attempts remain, the executor sleeps for
//
//	min(InitialDelay * 2^attempt, MaxDelay)
//
// plus up to 10% random jitter, then retries. After exhausting attempts
// the last error is surfaced.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	// Default: 1 second
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth of the delay.
	// Default: 10 seconds
	MaxDelay time.Duration

	// PerAttemptTimeout bounds each individual attempt. A caller-supplied
	// context deadline that is tighter always wins.
	// Default: 10 seconds
	PerAttemptTimeout time.Duration

	// IsRetryable classifies attempt errors. Returning false stops the
	// run immediately and surfaces that error unwrapped: a definitive
	// answer (say, an entity that does not exist) gains nothing from
	// being asked again.
	// Default: nil (every error is retried)
	IsRetryable func(error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		PerAttemptTimeout: 10 * time.Second,
	}
}

// BackoffExecutor retries a fallible operation with exponential backoff
// and jitter.
//
// # Description
//
// The executor knows nothing about the FailureGate. Callers must check
// Allow() before invoking Do, and must record the executor's overall
// outcome on the gate afterwards, never an individual attempt's outcome.
//
// # Thread Safety
//
// The executor holds no mutable state; one instance may run any number
// of concurrent operations. Sleeps between retries suspend only the
// calling goroutine.
type BackoffExecutor struct {
	config RetryConfig

	// jitter computes the random addition to a backoff delay. Swapped in
	// tests for deterministic timing.
	jitter func(d time.Duration) time.Duration
}

// NewBackoffExecutor creates an executor. Zero config values fall back to
// DefaultRetryConfig.
func NewBackoffExecutor(config RetryConfig) *BackoffExecutor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.PerAttemptTimeout <= 0 {
		config.PerAttemptTimeout = 10 * time.Second
	}
	return &BackoffExecutor{
		config: config,
		jitter: func(d time.Duration) time.Duration {
			// Up to 10% of the base delay.
			return time.Duration(rand.Int63n(int64(d)/10 + 1))
		},
	}
}

// Do runs op until it succeeds, the attempt budget is exhausted, or the
// caller's context is done.
//
// # Inputs
//
//   - ctx: Caller context. Its deadline propagates into every attempt;
//     once it is exceeded the current attempt is abandoned and its
//     eventual result discarded.
//   - op: The operation. Each invocation receives a context bounded by
//     PerAttemptTimeout.
//
// # Outputs
//
//   - error: nil on the first successful attempt, otherwise the error
//     from the final attempt.
func (e *BackoffExecutor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < e.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.config.PerAttemptTimeout)
		err := op(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if e.config.IsRetryable != nil && !e.config.IsRetryable(err) {
			return err
		}

		// The caller is gone; retrying would only burn upstream quota.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", e.config.MaxAttempts, lastErr)
}

// Delay returns the backoff delay after failed attempt index i (0-based),
// before jitter. Exposed for tests and for callers that schedule their
// own waits.
func (e *BackoffExecutor) Delay(i int) time.Duration {
	d := e.config.InitialDelay << uint(i)
	if d > e.config.MaxDelay || d <= 0 {
		d = e.config.MaxDelay
	}
	return d
}

// sleep suspends the calling goroutine for the backoff delay plus up to
// 10% jitter, returning early if ctx is done.
func (e *BackoffExecutor) sleep(ctx context.Context, i int) error {
	d := e.Delay(i)

	timer := time.NewTimer(d + e.jitter(d))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

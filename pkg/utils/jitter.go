// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"context"
	"math/rand/v2"
	"time"
)

// Jitter adds random jitter to a duration to prevent thundering herd.
// The jitter is applied as a percentage of the base duration.
//
// Example: Jitter(time.Minute, 0.1) returns 54s-66s (±10%)
func Jitter(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || base <= 0 {
		return base
	}
	if fraction > 1 {
		fraction = 1
	}
	jitterRange := float64(base) * fraction
	jitter := (rand.Float64()*2 - 1) * jitterRange
	return base + time.Duration(jitter)
}

// Backoff returns the delay before retry number attempt (0-based): base doubled
// per attempt, capped at max, plus up to 100% extra random jitter.
//
// Example: Backoff(0, 10ms, 1s) is 10-20ms, Backoff(2, 10ms, 1s) is 40-80ms.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base << attempt
	if max > 0 && (d > max || d <= 0) {
		d = max
	}
	return d + time.Duration(rand.Int64N(int64(d)+1))
}

// SleepContext waits for d or until ctx is done, whichever comes first.
// It reports false when the context ended the wait.
func SleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// RunJittered calls fn every interval (±fraction) until ctx is done. The
// first call happens after one jittered interval, not immediately.
func RunJittered(ctx context.Context, interval time.Duration, fraction float64, fn func(context.Context)) {
	for {
		if !SleepContext(ctx, Jitter(interval, fraction)) {
			return
		}
		fn(ctx)
	}
}

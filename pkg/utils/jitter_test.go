// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitter(t *testing.T) {
	t.Parallel()

	base := time.Minute
	for range 200 {
		d := Jitter(base, 0.1)
		assert.GreaterOrEqual(t, d, 54*time.Second)
		assert.LessOrEqual(t, d, 66*time.Second)
	}
	assert.Equal(t, base, Jitter(base, 0))
	assert.Equal(t, time.Duration(0), Jitter(0, 0.5))
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := 10 * time.Millisecond
	for range 100 {
		d0 := Backoff(0, base, time.Second)
		assert.GreaterOrEqual(t, d0, base)
		assert.LessOrEqual(t, d0, 2*base)

		d2 := Backoff(2, base, time.Second)
		assert.GreaterOrEqual(t, d2, 4*base)
		assert.LessOrEqual(t, d2, 8*base)

		capped := Backoff(20, base, time.Second)
		assert.GreaterOrEqual(t, capped, time.Second)
		assert.LessOrEqual(t, capped, 2*time.Second)
	}
	assert.Equal(t, time.Duration(0), Backoff(3, 0, time.Second))
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		assert.True(t, SleepContext(ctx, time.Hour))

		cancel()
		assert.False(t, SleepContext(ctx, time.Hour))
		assert.False(t, SleepContext(ctx, 0))
	})
}

func TestRunJittered(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		var calls atomic.Int32
		done := make(chan struct{})
		go func() {
			RunJittered(ctx, time.Minute, 0.1, func(context.Context) { calls.Add(1) })
			close(done)
		}()

		time.Sleep(5*time.Minute + 30*time.Second)
		synctest.Wait()
		n := calls.Load()
		assert.GreaterOrEqual(t, n, int32(4))
		assert.LessOrEqual(t, n, int32(6))

		cancel()
		<-done
	})
}

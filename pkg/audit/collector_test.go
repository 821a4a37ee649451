// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore records inserted batches and can be told to fail.
type mockStore struct {
	NopStore

	mu       sync.Mutex
	entries  []Entry
	inserts  int
	failures int // remaining Insert calls that fail; -1 fails forever
}

var errStoreDown = errors.New("store down")

func (m *mockStore) Insert(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failures != 0 {
		if m.failures > 0 {
			m.failures--
		}
		return errStoreDown
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockStore) snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

func (m *mockStore) setFailures(n int) {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	cfg.FlushInterval = time.Second
	cfg.MaxRetries = 3
	cfg.RetryBaseDelay = 10 * time.Millisecond
	cfg.RetryMaxDelay = 100 * time.Millisecond
	return cfg
}

func events(entries []Entry) []EventType {
	out := make([]EventType, len(entries))
	for i, e := range entries {
		out[i] = e.Event
	}
	return out
}

func TestCollector_PreservesOrderPerKey(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &mockStore{}
		c := NewCollector(testConfig(), store)
		c.Start(t.Context())
		defer c.Stop()

		c.Record(Entry{Event: EventUpload, ObjectKey: "a"})
		c.Record(Entry{Event: EventUpload, ObjectKey: "b"})
		c.Record(Entry{Event: EventAccess, ObjectKey: "a"})
		c.Record(Entry{Event: EventDelete, ObjectKey: "a"})

		require.NoError(t, c.Flush(t.Context()))

		var forA []Entry
		for _, e := range store.snapshot() {
			if e.ObjectKey == "a" {
				forA = append(forA, e)
			}
		}
		assert.Equal(t, []EventType{EventUpload, EventAccess, EventDelete}, events(forA))
		for i := 1; i < len(forA); i++ {
			assert.Less(t, forA[i-1].Seq, forA[i].Seq)
		}
	})
}

func TestCollector_FlushOnInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &mockStore{}
		c := NewCollector(testConfig(), store)
		c.Start(t.Context())
		defer c.Stop()

		c.Record(Entry{Event: EventUpload, ObjectKey: "k"})
		synctest.Wait()
		assert.Empty(t, store.snapshot())

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Len(t, store.snapshot(), 1)
	})
}

func TestCollector_FlushOnBatchSize(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &mockStore{}
		cfg := testConfig()
		cfg.BatchSize = 3
		cfg.FlushInterval = time.Hour
		c := NewCollector(cfg, store)
		c.Start(t.Context())
		defer c.Stop()

		for range 3 {
			c.Record(Entry{Event: EventAccess, ObjectKey: "k"})
		}
		synctest.Wait()
		assert.Len(t, store.snapshot(), 3)
	})
}

func TestCollector_RetriesTransientFailures(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &mockStore{failures: 2}
		c := NewCollector(testConfig(), store)
		c.Start(t.Context())
		defer c.Stop()

		c.Record(Entry{Event: EventUpload, ObjectKey: "k"})
		require.NoError(t, c.Flush(t.Context()))

		assert.Len(t, store.snapshot(), 1)
		assert.Equal(t, 3, store.inserts)
	})
}

func TestCollector_DropsAfterMaxRetries(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &mockStore{failures: -1}
		c := NewCollector(testConfig(), store)
		c.Start(t.Context())
		defer c.Stop()

		c.Record(Entry{Event: EventUpload, ObjectKey: "lost"})
		err := c.Flush(t.Context())
		require.ErrorIs(t, err, errStoreDown)
		assert.Equal(t, 4, store.inserts)

		// The dropped batch is not retried later.
		store.setFailures(0)
		c.Record(Entry{Event: EventUpload, ObjectKey: "kept"})
		require.NoError(t, c.Flush(t.Context()))

		got := store.snapshot()
		require.Len(t, got, 1)
		assert.Equal(t, "kept", got[0].ObjectKey)
	})
}

func TestCollector_FullBufferDrops(t *testing.T) {
	store := &mockStore{}
	cfg := testConfig()
	cfg.BufferSize = 2
	c := NewCollector(cfg, store)

	for range 5 {
		c.Record(Entry{Event: EventAccess, ObjectKey: "k"})
	}
	require.NoError(t, c.Flush(context.Background()))
	assert.Len(t, store.snapshot(), 2)
	c.Stop()
}

func TestCollector_StopFlushesPending(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &mockStore{}
		cfg := testConfig()
		cfg.FlushInterval = time.Hour
		c := NewCollector(cfg, store)
		c.Start(t.Context())

		c.Record(Entry{Event: EventUpload, ObjectKey: "k"})
		c.Record(Entry{Event: EventDelete, ObjectKey: "k"})
		c.Stop()

		assert.Equal(t, []EventType{EventUpload, EventDelete}, events(store.snapshot()))

		c.Record(Entry{Event: EventAccess, ObjectKey: "k"})
		assert.ErrorIs(t, c.Flush(t.Context()), ErrCollectorStopped)
		assert.Len(t, store.snapshot(), 2)
	})
}

func TestCollector_RecordNeverBlocks(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &mockStore{failures: -1}
		cfg := testConfig()
		cfg.BufferSize = 4
		cfg.BatchSize = 2
		c := NewCollector(cfg, store)
		c.Start(t.Context())
		defer c.Stop()

		start := time.Now()
		for range 100 {
			c.Record(Entry{Event: EventAccess, ObjectKey: "k"})
		}
		assert.Equal(t, start, time.Now())
	})
}

func TestCollector_AssignsTimeAndSeq(t *testing.T) {
	store := &mockStore{}
	c := NewCollector(testConfig(), store)
	defer c.Stop()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.Record(Entry{Event: EventUpload, ObjectKey: "k"})
	c.Record(Entry{Event: EventAccess, ObjectKey: "k", Time: fixed})
	require.NoError(t, c.Flush(context.Background()))

	got := store.snapshot()
	require.Len(t, got, 2)
	assert.False(t, got[0].Time.IsZero())
	assert.Equal(t, fixed, got[1].Time)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, uint64(2), got[1].Seq)
}

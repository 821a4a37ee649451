// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/btree"
)

const btreeDegree = 32

// MemoryStore keeps entries in a B-tree ordered by (time, seq).
type MemoryStore struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[Entry]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tree: btree.NewG(btreeDegree, func(a, b Entry) bool { return a.before(b) }),
	}
}

func (s *MemoryStore) Insert(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.tree.ReplaceOrInsert(e)
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	visit := func(e Entry) bool {
		if q.ObjectKey != "" && e.ObjectKey != q.ObjectKey {
			return true
		}
		out = append(out, e)
		return q.Limit <= 0 || len(out) < q.Limit
	}

	start := Entry{Time: q.Start}
	switch {
	case q.End.IsZero():
		s.tree.AscendGreaterOrEqual(start, visit)
	default:
		s.tree.AscendRange(start, Entry{Time: q.End}, visit)
	}
	return out, nil
}

func (s *MemoryStore) Since(_ context.Context, c Cursor, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	pivot := Entry{Time: c.Time, Seq: c.Seq}
	s.tree.AscendGreaterOrEqual(pivot, func(e Entry) bool {
		if !pivot.before(e) {
			return true
		}
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for {
		min, ok := s.tree.Min()
		if !ok || !min.Time.Before(cutoff) {
			return n, nil
		}
		s.tree.DeleteMin()
		n++
	}
}

// Len returns the number of retained entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

func (s *MemoryStore) Close() error { return nil }

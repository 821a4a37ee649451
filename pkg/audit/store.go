// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"time"
)

// Query selects entries for one key in [Start, End). Zero times are open
// bounds. Results are ordered oldest first.
type Query struct {
	ObjectKey string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Cursor marks a position in the (time, seq) order. Since returns entries
// strictly after it.
type Cursor struct {
	Time time.Time
	Seq  uint64
}

// After returns the cursor positioned at e.
func After(e Entry) Cursor {
	return Cursor{Time: e.Time, Seq: e.Seq}
}

// Store persists audit entries.
type Store interface {
	// Insert appends a batch. Entries arrive in recording order.
	Insert(ctx context.Context, entries []Entry) error

	Query(ctx context.Context, q Query) ([]Entry, error)

	// Since returns up to limit entries after c, oldest first.
	Since(ctx context.Context, c Cursor, limit int) ([]Entry, error)

	// DeleteBefore removes entries with Time before cutoff and reports how
	// many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// NopStore discards everything.
type NopStore struct{}

func (NopStore) Insert(context.Context, []Entry) error { return nil }

func (NopStore) Query(context.Context, Query) ([]Entry, error) { return nil, nil }

func (NopStore) Since(context.Context, Cursor, int) ([]Entry, error) { return nil, nil }

func (NopStore) DeleteBefore(context.Context, time.Time) (int, error) { return 0, nil }

func (NopStore) Close() error { return nil }

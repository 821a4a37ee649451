// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package leveldb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/metadata/db/dbtest"
	"github.com/internaltools/credshare/pkg/types"
)

func TestLevelDB(t *testing.T) {
	t.Parallel()

	dbtest.Run(t, func(t *testing.T) db.DB {
		d, err := Open(t.TempDir(), false)
		require.NoError(t, err)
		t.Cleanup(func() { d.Close() })
		return d
	})
}

func TestLevelDB_Reopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	d, err := Open(dir, true)
	require.NoError(t, err)
	_, err = d.SwapObject(ctx, &types.ObjectMeta{Key: "a", BlobID: "b1", ExpiresAt: 50})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(dir, true)
	require.NoError(t, err)
	defer d.Close()

	got, err := d.GetObject(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.BlobID)

	expired, err := d.ListExpiredObjects(ctx, 50, 0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
}

func TestLevelDB_SwapMovesExpiryIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d, err := Open(t.TempDir(), false)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.SwapObject(ctx, &types.ObjectMeta{Key: "a", BlobID: "b1", ExpiresAt: 10})
	require.NoError(t, err)
	_, err = d.SwapObject(ctx, &types.ObjectMeta{Key: "a", BlobID: "b2", ExpiresAt: 100})
	require.NoError(t, err)

	expired, err := d.ListExpiredObjects(ctx, 50, 0)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

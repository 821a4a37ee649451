// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package dbtest holds behaviour tests shared by every db.DB implementation.
package dbtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/types"
)

// Run exercises newDB against the db.DB contract. newDB must return an
// empty, migrated store that is closed by the caller's cleanup.
func Run(t *testing.T, newDB func(t *testing.T) db.DB) {
	tests := []struct {
		name string
		fn   func(t *testing.T, d db.DB)
	}{
		{"GetMissing", testGetMissing},
		{"SwapObject", testSwapObject},
		{"InsertObject", testInsertObject},
		{"DeleteObject", testDeleteObject},
		{"DeleteObjectIfBlob", testDeleteObjectIfBlob},
		{"ListExpiredObjects", testListExpiredObjects},
		{"ConcurrentSwap", testConcurrentSwap},
		{"MultipartLifecycle", testMultipartLifecycle},
		{"PutPartAfterDelete", testPutPartAfterDelete},
		{"ConcurrentDeleteUpload", testConcurrentDeleteUpload},
		{"ListStaleUploads", testListStaleUploads},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newDB(t))
		})
	}
}

func object(key, blob string, created, expires int64) *types.ObjectMeta {
	return &types.ObjectMeta{
		Key:         key,
		BlobID:      blob,
		Size:        6,
		ContentType: "text/plain",
		ETag:        "etag-" + blob,
		CreatedAt:   created,
		ExpiresAt:   expires,
		Metadata:    map[string]string{"original-name": "creds.env"},
	}
}

func testGetMissing(t *testing.T, d db.DB) {
	_, err := d.GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, db.ErrObjectNotFound)

	_, err = d.GetMultipartUpload(context.Background(), "nope")
	assert.ErrorIs(t, err, db.ErrUploadNotFound)
}

func testSwapObject(t *testing.T, d db.DB) {
	ctx := context.Background()

	a := object("k", "blob-a", 1, 100)
	prev, err := d.SwapObject(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, prev)

	got, err := d.GetObject(ctx, "k")
	require.NoError(t, err)
	if diff := cmp.Diff(a, got); diff != "" {
		t.Fatalf("stored object mismatch (-want +got):\n%s", diff)
	}

	b := object("k", "blob-b", 2, 200)
	prev, err = d.SwapObject(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "blob-a", prev.BlobID)

	got, err = d.GetObject(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "blob-b", got.BlobID)
	assert.Equal(t, int64(200), got.ExpiresAt)
}

func testInsertObject(t *testing.T, d db.DB) {
	ctx := context.Background()

	prev, err := d.InsertObject(ctx, object("k", "blob-a", 1, 100), 1)
	require.NoError(t, err)
	assert.Nil(t, prev)

	_, err = d.InsertObject(ctx, object("k", "blob-b", 50, 150), 50)
	assert.ErrorIs(t, err, db.ErrObjectExists)

	got, err := d.GetObject(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "blob-a", got.BlobID)

	// Expired records are replaced.
	prev, err = d.InsertObject(ctx, object("k", "blob-c", 100, 200), 100)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "blob-a", prev.BlobID)
}

func testDeleteObject(t *testing.T, d db.DB) {
	ctx := context.Background()

	prev, err := d.DeleteObject(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, prev)

	_, err = d.SwapObject(ctx, object("k", "blob-a", 1, 100))
	require.NoError(t, err)

	prev, err = d.DeleteObject(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "blob-a", prev.BlobID)

	_, err = d.GetObject(ctx, "k")
	assert.ErrorIs(t, err, db.ErrObjectNotFound)
}

func testDeleteObjectIfBlob(t *testing.T, d db.DB) {
	ctx := context.Background()

	_, err := d.SwapObject(ctx, object("k", "blob-a", 1, 100))
	require.NoError(t, err)

	ok, err := d.DeleteObjectIfBlob(ctx, "k", "blob-old")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.DeleteObjectIfBlob(ctx, "k", "blob-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.DeleteObjectIfBlob(ctx, "k", "blob-a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testListExpiredObjects(t *testing.T, d db.DB) {
	ctx := context.Background()

	for i, exp := range []int64{10, 20, 30, 40} {
		_, err := d.SwapObject(ctx, object(fmt.Sprintf("k%d", i), fmt.Sprintf("b%d", i), 0, exp))
		require.NoError(t, err)
	}

	expired, err := d.ListExpiredObjects(ctx, 20, 0)
	require.NoError(t, err)
	keys := make([]string, 0, len(expired))
	for _, o := range expired {
		keys = append(keys, o.Key)
	}
	assert.ElementsMatch(t, []string{"k0", "k1"}, keys)

	limited, err := d.ListExpiredObjects(ctx, 100, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	none, err := d.ListExpiredObjects(ctx, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testConcurrentSwap(t *testing.T, d db.DB) {
	ctx := context.Background()
	const writers = 16

	var (
		mu        sync.Mutex
		displaced = map[string]int{}
		wg        sync.WaitGroup
	)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prev, err := d.SwapObject(ctx, object("same", fmt.Sprintf("blob-%d", i), int64(i), 1000))
			assert.NoError(t, err)
			if prev != nil {
				mu.Lock()
				displaced[prev.BlobID]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	final, err := d.GetObject(ctx, "same")
	require.NoError(t, err)
	assert.NotContains(t, displaced, final.BlobID)
	assert.Len(t, displaced, writers-1)
	for blob, n := range displaced {
		assert.Equal(t, 1, n, "blob %s displaced more than once", blob)
	}
}

func testMultipartLifecycle(t *testing.T, d db.DB) {
	ctx := context.Background()

	u := &types.MultipartUpload{
		UploadID:    "up-1",
		Key:         "big.log",
		Initiated:   10,
		ContentType: "text/plain",
		Metadata:    map[string]string{"original-name": "big.log"},
	}
	require.NoError(t, d.CreateMultipartUpload(ctx, u))

	got, err := d.GetMultipartUpload(ctx, "up-1")
	require.NoError(t, err)
	if diff := cmp.Diff(u, got); diff != "" {
		t.Fatalf("upload mismatch (-want +got):\n%s", diff)
	}

	for _, n := range []int{2, 1} {
		prev, err := d.PutPart(ctx, &types.MultipartPart{
			UploadID: "up-1", PartNumber: n, BlobID: fmt.Sprintf("p%d", n), Size: 5, ETag: "e", Checksum: "c", LastModified: 11,
		})
		require.NoError(t, err)
		assert.Nil(t, prev)
	}
	prev, err := d.PutPart(ctx, &types.MultipartPart{UploadID: "up-1", PartNumber: 2, BlobID: "p2-again", Size: 7})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "p2", prev.BlobID)

	parts, err := d.ListParts(ctx, "up-1")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[0].PartNumber)
	assert.Equal(t, "p2-again", parts[1].BlobID)

	removed, err := d.DeleteMultipartUpload(ctx, "up-1")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	_, err = d.GetMultipartUpload(ctx, "up-1")
	assert.ErrorIs(t, err, db.ErrUploadNotFound)
	_, err = d.DeleteMultipartUpload(ctx, "up-1")
	assert.ErrorIs(t, err, db.ErrUploadNotFound)
}

func testPutPartAfterDelete(t *testing.T, d db.DB) {
	ctx := context.Background()

	_, err := d.PutPart(ctx, &types.MultipartPart{UploadID: "missing", PartNumber: 1, BlobID: "x"})
	assert.ErrorIs(t, err, db.ErrUploadNotFound)

	require.NoError(t, d.CreateMultipartUpload(ctx, &types.MultipartUpload{UploadID: "up", Key: "k", Initiated: 1}))
	_, err = d.DeleteMultipartUpload(ctx, "up")
	require.NoError(t, err)

	_, err = d.PutPart(ctx, &types.MultipartPart{UploadID: "up", PartNumber: 1, BlobID: "x"})
	assert.ErrorIs(t, err, db.ErrUploadNotFound)
}

func testConcurrentDeleteUpload(t *testing.T, d db.DB) {
	ctx := context.Background()
	require.NoError(t, d.CreateMultipartUpload(ctx, &types.MultipartUpload{UploadID: "race", Key: "k", Initiated: 1}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.DeleteMultipartUpload(ctx, "race"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func testListStaleUploads(t *testing.T, d db.DB) {
	ctx := context.Background()

	for i, initiated := range []int64{100, 200, 300} {
		require.NoError(t, d.CreateMultipartUpload(ctx, &types.MultipartUpload{
			UploadID: fmt.Sprintf("u%d", i), Key: "k", Initiated: initiated,
		}))
	}

	stale, err := d.ListStaleUploads(ctx, 200, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(stale))
	for _, u := range stale {
		ids = append(ids, u.UploadID)
	}
	assert.ElementsMatch(t, []string{"u0", "u1"}, ids)

	limited, err := d.ListStaleUploads(ctx, 1000, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/events"
	"github.com/internaltools/credshare/pkg/types"
	"github.com/internaltools/credshare/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartConfig() Config {
	cfg := DefaultConfig()
	cfg.MinPartSize = 4
	return cfg
}

func completed(n int, etag string) types.CompletedPart {
	return types.CompletedPart{PartNumber: n, ETag: etag}
}

func (e *testEnv) uploadPart(t *testing.T, key, uploadID string, n int, data string) *types.MultipartPart {
	t.Helper()
	part, err := e.store.UploadPart(context.Background(), key, uploadID, n, strings.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return part
}

func TestMultipart_Complete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(multipartConfig())
	ctx := context.Background()

	upload, err := env.store.CreateMultipartUpload(ctx, "big.log", PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)

	p1 := env.uploadPart(t, "big.log", upload.UploadID, 1, "abcd")
	p2 := env.uploadPart(t, "big.log", upload.UploadID, 2, "ef")
	assert.Equal(t, utils.Sha256Hex([]byte("abcd")), p1.ETag)
	assert.Equal(t, utils.Crc64nvmeBase64([]byte("abcd")), p1.Checksum)

	parts, err := env.store.ListParts(ctx, "big.log", upload.UploadID)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, 1, parts[0].PartNumber)
	assert.Equal(t, 2, parts[1].PartNumber)

	meta, err := env.store.CompleteMultipartUpload(ctx, "big.log", upload.UploadID, []types.CompletedPart{
		{PartNumber: 1, ETag: `"` + p1.ETag + `"`},
		{PartNumber: 2, ETag: p2.ETag},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)

	assert.Equal(t, "abcdef", env.read(t, "big.log"))
	assert.Equal(t, 1, env.blobs.Len(), "part blobs must be released")

	_, err = env.store.ListParts(ctx, "big.log", upload.UploadID)
	assert.ErrorIs(t, err, ErrNoSuchUpload)

	assert.Equal(t, []audit.EventType{audit.EventUpload, audit.EventAccess}, env.auditor.events("big.log"))
	assert.Contains(t, env.notifier.names, events.EventObjectCreatedCompleteUpload)
}

func TestMultipart_ReuploadReplacesPart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(multipartConfig())
	ctx := context.Background()

	upload, err := env.store.CreateMultipartUpload(ctx, "k", PutOptions{})
	require.NoError(t, err)
	env.uploadPart(t, "k", upload.UploadID, 1, "old!")
	p1 := env.uploadPart(t, "k", upload.UploadID, 1, "new!")
	assert.Equal(t, 1, env.blobs.Len())

	_, err = env.store.CompleteMultipartUpload(ctx, "k", upload.UploadID, []types.CompletedPart{{PartNumber: 1, ETag: p1.ETag}})
	require.NoError(t, err)
	assert.Equal(t, "new!", env.read(t, "k"))
}

func TestMultipart_CompleteValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(multipartConfig())
	ctx := context.Background()

	upload, err := env.store.CreateMultipartUpload(ctx, "k", PutOptions{})
	require.NoError(t, err)
	p1 := env.uploadPart(t, "k", upload.UploadID, 1, "ab")
	p2 := env.uploadPart(t, "k", upload.UploadID, 2, "cdef")

	tests := []struct {
		name  string
		parts []types.CompletedPart
		want  error
	}{
		{"no parts", nil, ErrInvalidPart},
		{"descending", []types.CompletedPart{completed(2, p2.ETag), completed(1, p1.ETag)}, ErrInvalidPartOrder},
		{"duplicate", []types.CompletedPart{completed(2, p2.ETag), completed(2, p2.ETag)}, ErrInvalidPartOrder},
		{"missing part", []types.CompletedPart{completed(3, p2.ETag)}, ErrInvalidPart},
		{"etag mismatch", []types.CompletedPart{completed(1, p2.ETag)}, ErrInvalidPart},
		{"part number out of range", []types.CompletedPart{completed(0, p1.ETag)}, ErrInvalidPartNumber},
		{"small non-final part", []types.CompletedPart{completed(1, p1.ETag), completed(2, p2.ETag)}, ErrInvalidPart},
	}
	for _, tt := range tests {
		_, err := env.store.CompleteMultipartUpload(ctx, "k", upload.UploadID, tt.parts)
		assert.ErrorIs(t, err, tt.want, tt.name)
	}

	// A small final part is fine; the upload survived every rejection.
	_, err = env.store.CompleteMultipartUpload(ctx, "k", upload.UploadID, []types.CompletedPart{completed(2, p2.ETag)})
	require.NoError(t, err)
	assert.Equal(t, "cdef", env.read(t, "k"))
	assert.Equal(t, 1, env.blobs.Len())
}

func TestMultipart_TooLarge(t *testing.T) {
	t.Parallel()

	cfg := multipartConfig()
	cfg.MaxObjectSize = 6
	env := newTestEnv(cfg)
	ctx := context.Background()

	upload, err := env.store.CreateMultipartUpload(ctx, "k", PutOptions{})
	require.NoError(t, err)
	p1 := env.uploadPart(t, "k", upload.UploadID, 1, "abcd")
	p2 := env.uploadPart(t, "k", upload.UploadID, 2, "efgh")

	_, err = env.store.CompleteMultipartUpload(ctx, "k", upload.UploadID, []types.CompletedPart{completed(1, p1.ETag), completed(2, p2.ETag)})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestMultipart_UnknownUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(multipartConfig())
	ctx := context.Background()

	_, err := env.store.UploadPart(ctx, "k", "nope", 1, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrNoSuchUpload)
	assert.ErrorIs(t, err, ErrNotFound)

	upload, err := env.store.CreateMultipartUpload(ctx, "k", PutOptions{})
	require.NoError(t, err)

	// The upload belongs to "k" only.
	_, err = env.store.UploadPart(ctx, "other", upload.UploadID, 1, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrNoSuchUpload)

	_, err = env.store.UploadPart(ctx, "k", upload.UploadID, types.MaxPartNumber+1, strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, ErrInvalidPartNumber)

	_, err = env.store.ListParts(ctx, "k", "")
	assert.ErrorIs(t, err, ErrNoSuchUpload)
	assert.Zero(t, env.blobs.Len())
}

func TestMultipart_Abort(t *testing.T) {
	t.Parallel()

	env := newTestEnv(multipartConfig())
	ctx := context.Background()

	upload, err := env.store.CreateMultipartUpload(ctx, "k", PutOptions{})
	require.NoError(t, err)
	p1 := env.uploadPart(t, "k", upload.UploadID, 1, "data")

	require.NoError(t, env.store.AbortMultipartUpload(ctx, "k", upload.UploadID))
	assert.Zero(t, env.blobs.Len())

	assert.ErrorIs(t, env.store.AbortMultipartUpload(ctx, "k", upload.UploadID), ErrNoSuchUpload)
	_, err = env.store.CompleteMultipartUpload(ctx, "k", upload.UploadID, []types.CompletedPart{completed(1, p1.ETag)})
	assert.ErrorIs(t, err, ErrNoSuchUpload)
	_, err = env.store.UploadPart(ctx, "k", upload.UploadID, 2, strings.NewReader("more"), 4)
	assert.ErrorIs(t, err, ErrNoSuchUpload)
	assert.Zero(t, env.blobs.Len())
}

func TestMultipart_CreateRespectsOverwritePolicy(t *testing.T) {
	t.Parallel()

	cfg := multipartConfig()
	cfg.AllowOverwrite = false
	env := newTestEnv(cfg)

	env.put(t, "k", "v")
	_, err := env.store.CreateMultipartUpload(context.Background(), "k", PutOptions{})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPartsReader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	ctx := context.Background()
	for id, data := range map[string]string{"a": "hello ", "b": "", "c": "world"} {
		require.NoError(t, env.blobs.Write(ctx, id, strings.NewReader(data), int64(len(data))))
	}

	pr := &partsReader{ctx: ctx, blobs: env.blobs, ids: []string{"a", "b", "c"}}
	var sb strings.Builder
	buf := make([]byte, 3)
	for {
		n, err := pr.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			assert.ErrorIs(t, err, io.EOF)
			break
		}
	}
	require.NoError(t, pr.Close())
	assert.Equal(t, "hello world", sb.String())

	pr = &partsReader{ctx: ctx, blobs: env.blobs, ids: []string{"missing"}}
	_, err := pr.Read(buf)
	assert.Error(t, err)
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/events"
	memdb "github.com/internaltools/credshare/pkg/metadata/db/memory"
	"github.com/internaltools/credshare/pkg/storage/backend"
	"github.com/internaltools/credshare/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAuditor) Record(e audit.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *recordingAuditor) events(key string) []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.EventType
	for _, e := range r.entries {
		if e.ObjectKey == key {
			out = append(out, e.Event)
		}
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	names []events.EventType
}

func (r *recordingNotifier) Emit(_ context.Context, t events.EventType, _ events.Object) {
	r.mu.Lock()
	r.names = append(r.names, t)
	r.mu.Unlock()
}

type testEnv struct {
	store    *Store
	meta     *memdb.DB
	blobs    *backend.MemoryStorage
	auditor  *recordingAuditor
	notifier *recordingNotifier
}

func newTestEnv(cfg Config) *testEnv {
	env := &testEnv{
		meta:     memdb.New(),
		blobs:    backend.NewMemoryStorage(),
		auditor:  &recordingAuditor{},
		notifier: &recordingNotifier{},
	}
	env.store = New(cfg, env.meta, env.blobs, WithAuditor(env.auditor), WithNotifier(env.notifier))
	return env
}

func (e *testEnv) put(t *testing.T, key, payload string) *types.ObjectMeta {
	t.Helper()
	meta, err := e.store.Put(context.Background(), key, strings.NewReader(payload), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)
	return meta
}

func (e *testEnv) read(t *testing.T, key string) string {
	t.Helper()
	_, body, err := e.store.Get(context.Background(), key)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(data)
}

func TestStore_ExpiresAfterRetention(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		env := newTestEnv(DefaultConfig())

		meta := env.put(t, "a", "secret")
		assert.Equal(t, 24*time.Hour, meta.Expires().Sub(meta.Created()))

		time.Sleep(23*time.Hour + 59*time.Minute)
		assert.Equal(t, "secret", env.read(t, "a"))

		time.Sleep(2 * time.Minute)
		_, _, err := env.store.Get(t.Context(), "a")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = env.store.Head(t.Context(), "a")
		assert.ErrorIs(t, err, ErrNotFound)

		// Unswept, but never served.
		assert.Equal(t, 1, env.blobs.Len())
	})
}

func TestStore_ExpiresAtExactDeadline(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		env := newTestEnv(DefaultConfig())
		env.put(t, "a", "x")

		time.Sleep(24 * time.Hour)
		_, _, err := env.store.Get(t.Context(), "a")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_GetReturnsPayloadAndMetadata(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	put, err := env.store.Put(context.Background(), "dir/creds.env", strings.NewReader("TOKEN=abc"), PutOptions{
		ContentType: "text/plain",
		Metadata:    map[string]string{"original-name": "creds.env"},
		Size:        9,
	})
	require.NoError(t, err)

	meta, body, err := env.store.Get(context.Background(), "dir/creds.env")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)

	assert.Equal(t, "TOKEN=abc", string(data))
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, int64(9), meta.Size)
	assert.Equal(t, put.ETag, meta.ETag)
	assert.Len(t, meta.ETag, 64)
	assert.Equal(t, "creds.env", meta.Metadata["original-name"])

	head, err := env.store.Head(context.Background(), "dir/creds.env")
	require.NoError(t, err)
	assert.Equal(t, meta, head)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	require.NoError(t, env.store.Delete(context.Background(), "missing"))

	env.put(t, "k", "v")
	require.NoError(t, env.store.Delete(context.Background(), "k"))
	require.NoError(t, env.store.Delete(context.Background(), "k"))

	_, _, err := env.store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.blobs.Len())
}

func TestStore_SequentialPutsLastWins(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	env.put(t, "k", "A")
	env.put(t, "k", "B")

	assert.Equal(t, "B", env.read(t, "k"))
	assert.Equal(t, 1, env.blobs.Len())
}

func TestStore_ConcurrentPutsLeaveOneBlob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	const writers = 16

	var wg sync.WaitGroup
	for i := range writers {
		wg.Go(func() {
			_, err := env.store.Put(context.Background(), "k", strings.NewReader(fmt.Sprintf("v%d", i)), PutOptions{})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got := env.read(t, "k")
	assert.True(t, strings.HasPrefix(got, "v"), got)
	assert.Equal(t, 1, env.blobs.Len())
}

func TestStore_OverwriteDisabled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AllowOverwrite = false
		env := newTestEnv(cfg)

		env.put(t, "k", "first")
		_, err := env.store.Put(t.Context(), "k", strings.NewReader("second"), PutOptions{})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, "first", env.read(t, "k"))
		assert.Equal(t, 1, env.blobs.Len())

		// An expired object no longer holds the key.
		time.Sleep(25 * time.Hour)
		env.put(t, "k", "third")
		assert.Equal(t, "third", env.read(t, "k"))
		assert.Equal(t, 1, env.blobs.Len())
	})
}

func TestStore_AuditOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	env.put(t, "k", "v")
	env.read(t, "k")
	require.NoError(t, env.store.Delete(context.Background(), "k"))

	assert.Equal(t, []audit.EventType{audit.EventUpload, audit.EventAccess, audit.EventDelete}, env.auditor.events("k"))
	assert.Equal(t, []events.EventType{
		events.EventObjectCreatedPut,
		events.EventObjectAccessedGet,
		events.EventObjectRemovedDelete,
	}, env.notifier.names)
}

func TestStore_FailedReadsAreNotAudited(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	_, _, err := env.store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, env.auditor.events("missing"))

	// Deletes are audited whether or not the key existed.
	require.NoError(t, env.store.Delete(context.Background(), "missing"))
	assert.Equal(t, []audit.EventType{audit.EventDelete}, env.auditor.events("missing"))
}

type downStore struct{ audit.NopStore }

var errAuditDown = errors.New("audit store down")

func (downStore) Insert(context.Context, []audit.Entry) error { return errAuditDown }

func TestStore_FailingAuditStoreDoesNotFailCaller(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		cfg := audit.DefaultConfig()
		cfg.MaxRetries = -1
		auditLog := audit.New(cfg, downStore{})
		defer auditLog.Stop()

		store := New(DefaultConfig(), memdb.New(), backend.NewMemoryStorage(), WithAuditor(auditLog))

		_, err := store.Put(t.Context(), "k", strings.NewReader("v"), PutOptions{})
		require.NoError(t, err)
		_, body, err := store.Get(t.Context(), "k")
		require.NoError(t, err)
		body.Close()
		require.NoError(t, store.Delete(t.Context(), "k"))

		assert.ErrorIs(t, auditLog.Flush(t.Context()), errAuditDown)
	})
}

func TestStore_TooLarge(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxObjectSize = 8
	env := newTestEnv(cfg)

	_, err := env.store.Put(context.Background(), "k", strings.NewReader("123456789"), PutOptions{})
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.store.Put(context.Background(), "k", strings.NewReader("1"), PutOptions{Size: 100})
	assert.ErrorIs(t, err, ErrTooLarge)

	env.put(t, "k", "12345678")
	assert.Equal(t, 1, env.blobs.Len())
}

func TestStore_ShortBody(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	_, err := env.store.Put(context.Background(), "k", strings.NewReader("abc"), PutOptions{Size: 10})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, env.blobs.Len())
}

func TestStore_InvalidKeys(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	for _, key := range []string{"", "/abs", "a/../b", "..", "nul\x00", "tab\tkey", strings.Repeat("k", MaxKeyLength+1), "\xff"} {
		_, err := env.store.Put(context.Background(), key, strings.NewReader("v"), PutOptions{})
		assert.ErrorIs(t, err, ErrInvalidKey, "%q", key)
		_, _, err = env.store.Get(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidInput, "%q", key)
	}
	assert.Zero(t, env.blobs.Len())

	for _, key := range []string{"a", "a/b/c.env", "..hidden", "a..b", "dir/", "ключ", strings.Repeat("k", MaxKeyLength)} {
		assert.NoError(t, ValidateKey(key), "%q", key)
	}
}

// flakyBackend fails writes or reads on demand.
type flakyBackend struct {
	*backend.MemoryStorage
	failWrite bool
}

var errBackendDown = errors.New("backend down")

func (f *flakyBackend) Write(ctx context.Context, key string, r io.Reader, size int64) error {
	if f.failWrite {
		return errBackendDown
	}
	return f.MemoryStorage.Write(ctx, key, r, size)
}

func TestStore_BackendFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	blobs := &flakyBackend{MemoryStorage: backend.NewMemoryStorage(), failWrite: true}
	store := New(DefaultConfig(), memdb.New(), blobs)

	_, err := store.Put(context.Background(), "k", strings.NewReader("v"), PutOptions{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, apierr.ErrServiceUnavailable, APIErrorCode(err))
}

func TestStore_MissingBlobIsNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	meta := env.put(t, "k", "v")
	require.NoError(t, env.blobs.Delete(context.Background(), meta.BlobID))

	_, _, err := env.store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PutCopiesMetadata(t *testing.T) {
	t.Parallel()

	env := newTestEnv(DefaultConfig())
	md := map[string]string{"a": "1"}
	_, err := env.store.Put(context.Background(), "k", bytes.NewReader([]byte("v")), PutOptions{Metadata: md})
	require.NoError(t, err)
	md["a"] = "2"

	head, err := env.store.Head(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "1", head.Metadata["a"])
}

func TestAPIErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want apierr.ErrorCode
	}{
		{nil, apierr.ErrNone},
		{newError("get", "k", ErrNotFound, nil), apierr.ErrNoSuchKey},
		{newError("put", "k", ErrNoSuchUpload, nil), apierr.ErrNoSuchUpload},
		{newError("put", "k", ErrConflict, nil), apierr.ErrKeyExists},
		{newError("put", "k", ErrTooLarge, nil), apierr.ErrEntityTooLarge},
		{newError("put", "k", ErrInvalidKey, nil), apierr.ErrInvalidKey},
		{newError("put", "k", ErrInvalidPart, nil), apierr.ErrInvalidPart},
		{newError("put", "k", ErrInvalidPartOrder, nil), apierr.ErrInvalidPartOrder},
		{newError("put", "k", ErrInvalidPartNumber, nil), apierr.ErrInvalidPartNumber},
		{newError("put", "k", ErrInvalidInput, nil), apierr.ErrInvalidArgument},
		{newError("put", "k", ErrUnavailable, nil), apierr.ErrServiceUnavailable},
		{errors.New("boom"), apierr.ErrInternalError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, APIErrorCode(tt.err), "%v", tt.err)
	}
}

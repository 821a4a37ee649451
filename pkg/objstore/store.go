// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package objstore is the ephemeral object store: every object lives for a
// fixed retention window, is never served past it, and is purged by a sweep.
//
// Metadata lives in a db.DB and payloads in a types.BackendStorage under a
// fresh blob ID per write. A write commits by atomically swapping the
// metadata record; whatever record it displaces has its blob deleted by the
// writer that displaced it, so each blob is released exactly once.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/events"
	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/storage/backend"
	"github.com/internaltools/credshare/pkg/types"
)

// maxReadAttempts bounds how often Get re-resolves a key whose blob vanished
// between the metadata read and the blob read.
const maxReadAttempts = 3

// Auditor receives audit entries. Record must not block or fail the caller.
type Auditor interface {
	Record(e audit.Entry)
}

// Notifier receives object notifications. Emit must not block.
type Notifier interface {
	Emit(ctx context.Context, eventType events.EventType, obj events.Object)
}

type nopAuditor struct{}

func (nopAuditor) Record(audit.Entry) {}

type nopNotifier struct{}

func (nopNotifier) Emit(context.Context, events.EventType, events.Object) {}

// Store is the ephemeral object store. It is safe for concurrent use.
type Store struct {
	cfg      Config
	meta     db.DB
	blobs    types.BackendStorage
	auditor  Auditor
	notifier Notifier
}

type Option func(*Store)

func WithAuditor(a Auditor) Option {
	return func(s *Store) {
		if a != nil {
			s.auditor = a
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// New creates a store over a metadata DB and a payload backend.
func New(cfg Config, meta db.DB, blobs types.BackendStorage, opts ...Option) *Store {
	cfg.Validate()
	s := &Store{
		cfg:      cfg,
		meta:     meta,
		blobs:    blobs,
		auditor:  nopAuditor{},
		notifier: nopNotifier{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Config() Config {
	return s.cfg
}

// PutOptions carries the optional attributes of a write.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string

	// Size is the payload length when known; zero or negative means unknown.
	Size int64
}

// Put stores payload under key for the retention window. With overwrite
// allowed the last put to complete wins.
func (s *Store) Put(ctx context.Context, key string, payload io.Reader, opts PutOptions) (meta *types.ObjectMeta, err error) {
	start := time.Now()
	defer func() { observe("put", start, err) }()

	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if !s.cfg.AllowOverwrite {
		if err := s.checkVacant(ctx, "put", key); err != nil {
			return nil, err
		}
	}

	blob, err := s.writeBlob(ctx, "put", key, payload, opts.Size)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	meta = &types.ObjectMeta{
		Key:         key,
		BlobID:      blob.ID,
		Size:        blob.Size,
		ContentType: opts.ContentType,
		ETag:        blob.ETag,
		CreatedAt:   now.UnixNano(),
		ExpiresAt:   now.Add(s.cfg.Retention).UnixNano(),
		Metadata:    maps.Clone(opts.Metadata),
	}
	if err := s.commit(ctx, "put", meta, now); err != nil {
		return nil, err
	}

	BytesTotal.WithLabelValues("in").Add(float64(meta.Size))
	s.record(ctx, audit.EventUpload, key, meta.Size)
	s.notify(ctx, events.EventObjectCreatedPut, meta)

	logger.Ctx(ctx).Debug().
		Str("key", key).
		Str("blob_id", meta.BlobID).
		Int64("size", meta.Size).
		Time("expires_at", meta.Expires()).
		Msg("object stored")

	return meta.Clone(), nil
}

// Get returns the object's metadata and payload. An object past its expiry
// is reported as ErrNotFound even if the sweep has not removed it yet. The
// caller must close the payload.
func (s *Store) Get(ctx context.Context, key string) (meta *types.ObjectMeta, body io.ReadCloser, err error) {
	start := time.Now()
	defer func() { observe("get", start, err) }()

	for range maxReadAttempts {
		meta, err = s.lookup(ctx, "get", key)
		if err != nil {
			return nil, nil, err
		}
		body, err = s.blobs.Read(ctx, meta.BlobID)
		if err == nil {
			break
		}
		if !errors.Is(err, backend.ErrBlobNotFound) {
			return nil, nil, unavailable("get", key, err)
		}
		// Overwritten or deleted between the two reads; resolve again.
	}
	if body == nil {
		return nil, nil, newError("get", key, ErrNotFound, nil)
	}

	BytesTotal.WithLabelValues("out").Add(float64(meta.Size))
	s.record(ctx, audit.EventAccess, key, meta.Size)
	s.notify(ctx, events.EventObjectAccessedGet, meta)
	return meta, body, nil
}

// Head returns the object's metadata under the same expiry rule as Get. It
// is not audited.
func (s *Store) Head(ctx context.Context, key string) (meta *types.ObjectMeta, err error) {
	start := time.Now()
	defer func() { observe("head", start, err) }()

	return s.lookup(ctx, "head", key)
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	if err := ValidateKey(key); err != nil {
		return err
	}
	prev, err := s.meta.DeleteObject(ctx, key)
	if err != nil {
		return unavailable("delete", key, err)
	}

	var size int64
	if prev != nil {
		size = prev.Size
		s.deleteBlob(ctx, prev.BlobID)
		s.notify(ctx, events.EventObjectRemovedDelete, prev)
	}
	s.record(ctx, audit.EventDelete, key, size)
	return nil
}

// lookup resolves key to an unexpired record.
func (s *Store) lookup(ctx context.Context, op, key string) (*types.ObjectMeta, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	meta, err := s.meta.GetObject(ctx, key)
	if errors.Is(err, db.ErrObjectNotFound) {
		return nil, newError(op, key, ErrNotFound, nil)
	}
	if err != nil {
		return nil, unavailable(op, key, err)
	}
	if meta.IsExpired(time.Now()) {
		ExpiredReadsTotal.Inc()
		return nil, newError(op, key, ErrNotFound, errors.New("expired"))
	}
	return meta, nil
}

// checkVacant fails fast with ErrConflict when an unexpired object holds key,
// so a rejected write does not upload its payload first.
func (s *Store) checkVacant(ctx context.Context, op, key string) error {
	existing, err := s.meta.GetObject(ctx, key)
	switch {
	case errors.Is(err, db.ErrObjectNotFound):
		return nil
	case err != nil:
		return unavailable(op, key, err)
	case !existing.IsExpired(time.Now()):
		return newError(op, key, ErrConflict, nil)
	}
	return nil
}

// commit publishes meta, whose blob is already written, and releases the
// blob of the record it displaced. On failure the new blob is released.
func (s *Store) commit(ctx context.Context, op string, meta *types.ObjectMeta, now time.Time) error {
	if exp, ok := s.blobs.(types.Expirer); ok {
		if err := exp.ExpireAt(ctx, meta.BlobID, meta.Expires()); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("blob_id", meta.BlobID).Msg("failed to set blob expiry")
		}
	}

	var (
		prev *types.ObjectMeta
		err  error
	)
	if s.cfg.AllowOverwrite {
		prev, err = s.meta.SwapObject(ctx, meta)
	} else {
		prev, err = s.meta.InsertObject(ctx, meta, now.UnixNano())
	}
	if err != nil {
		s.deleteBlob(ctx, meta.BlobID)
		if errors.Is(err, db.ErrObjectExists) {
			return newError(op, meta.Key, ErrConflict, nil)
		}
		return unavailable(op, meta.Key, err)
	}
	if prev != nil && prev.BlobID != meta.BlobID {
		s.deleteBlob(ctx, prev.BlobID)
	}
	return nil
}

type blobWrite struct {
	ID       string
	Size     int64
	ETag     string
	Checksum string
}

// writeBlob streams r into a new blob, enforcing MaxObjectSize.
func (s *Store) writeBlob(ctx context.Context, op, key string, r io.Reader, size int64) (blobWrite, error) {
	if size > s.cfg.MaxObjectSize {
		return blobWrite{}, newError(op, key, ErrTooLarge, nil)
	}
	if size <= 0 {
		size = -1
	}

	id := uuid.NewString()
	hr := newHashingReader(r, s.cfg.MaxObjectSize)
	defer hr.release()

	err := s.blobs.Write(ctx, id, hr, size)
	switch {
	case hr.exceeded:
		s.deleteBlob(ctx, id)
		return blobWrite{}, newError(op, key, ErrTooLarge, nil)
	case err != nil:
		s.deleteBlob(ctx, id)
		return blobWrite{}, unavailable(op, key, err)
	case size > 0 && hr.n != size:
		s.deleteBlob(ctx, id)
		return blobWrite{}, newError(op, key, ErrInvalidInput,
			fmt.Errorf("body is %d bytes, expected %d", hr.n, size))
	}
	return blobWrite{ID: id, Size: hr.n, ETag: hr.ETag(), Checksum: hr.Checksum()}, nil
}

// deleteBlob releases a blob, surviving cancellation of the caller's context.
// Failures are logged and counted; the blob is then orphaned.
func (s *Store) deleteBlob(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), id); err != nil {
		BlobDeleteErrorsTotal.Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("blob_id", id).Msg("failed to delete blob")
	}
}

func (s *Store) record(ctx context.Context, ev audit.EventType, key string, size int64) {
	s.auditor.Record(audit.NewEntry(ctx, ev, key, size))
}

func (s *Store) notify(ctx context.Context, ev events.EventType, meta *types.ObjectMeta) {
	s.notifier.Emit(ctx, ev, events.Object{
		Key:       meta.Key,
		Size:      meta.Size,
		ETag:      meta.ETag,
		ExpiresAt: meta.Expires(),
	})
}

func observe(op string, start time.Time, err error) {
	OperationsTotal.WithLabelValues(op, statusLabel(err)).Inc()
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

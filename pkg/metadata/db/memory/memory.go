// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-process metadata store. Records are kept in
// sharded maps so operations on different keys do not contend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/types"
	"github.com/internaltools/credshare/pkg/utils"
)

// DB is an in-memory implementation of db.DB
type DB struct {
	objects *utils.ShardedMap[*types.ObjectMeta]
	uploads *utils.ShardedMap[*upload]
}

type upload struct {
	meta *types.MultipartUpload

	mu    sync.Mutex
	parts map[int]*types.MultipartPart
	gone  bool
}

var _ db.DB = (*DB)(nil)

// New creates a new in-memory metadata store
func New() *DB {
	return &DB{
		objects: utils.NewShardedMap[*types.ObjectMeta](),
		uploads: utils.NewShardedMap[*upload](),
	}
}

func (d *DB) Migrate(ctx context.Context) error { return nil }

func (d *DB) Close() error { return nil }

// ============================================================================
// Objects
// ============================================================================

func (d *DB) GetObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	obj, ok := d.objects.Load(key)
	if !ok {
		return nil, db.ErrObjectNotFound
	}
	return obj.Clone(), nil
}

func (d *DB) SwapObject(ctx context.Context, obj *types.ObjectMeta) (*types.ObjectMeta, error) {
	prev, ok := d.objects.Swap(obj.Key, obj.Clone())
	if !ok {
		return nil, nil
	}
	return prev, nil
}

func (d *DB) InsertObject(ctx context.Context, obj *types.ObjectMeta, now int64) (*types.ObjectMeta, error) {
	var prev *types.ObjectMeta
	conflict := false
	stored := obj.Clone()
	d.objects.Compute(obj.Key, func(old *types.ObjectMeta, loaded bool) (*types.ObjectMeta, bool) {
		if loaded && old.ExpiresAt > now {
			conflict = true
			return old, true
		}
		if loaded {
			prev = old
		}
		return stored, true
	})
	if conflict {
		return nil, db.ErrObjectExists
	}
	return prev, nil
}

func (d *DB) DeleteObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	prev, ok := d.objects.LoadAndDelete(key)
	if !ok {
		return nil, nil
	}
	return prev, nil
}

func (d *DB) DeleteObjectIfBlob(ctx context.Context, key, blobID string) (bool, error) {
	return d.objects.DeleteKeyIf(key, func(o *types.ObjectMeta) bool {
		return o.BlobID == blobID
	}), nil
}

func (d *DB) ListExpiredObjects(ctx context.Context, now int64, limit int) ([]*types.ObjectMeta, error) {
	var out []*types.ObjectMeta
	d.objects.Range(func(_ string, o *types.ObjectMeta) bool {
		if o.ExpiresAt <= now {
			out = append(out, o.Clone())
		}
		return limit <= 0 || len(out) < limit
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt < out[j].ExpiresAt })
	return out, nil
}

// ============================================================================
// Multipart
// ============================================================================

func (d *DB) CreateMultipartUpload(ctx context.Context, u *types.MultipartUpload) error {
	cp := *u
	d.uploads.Store(u.UploadID, &upload{meta: &cp, parts: make(map[int]*types.MultipartPart)})
	return nil
}

func (d *DB) GetMultipartUpload(ctx context.Context, uploadID string) (*types.MultipartUpload, error) {
	u, ok := d.uploads.Load(uploadID)
	if !ok {
		return nil, db.ErrUploadNotFound
	}
	cp := *u.meta
	return &cp, nil
}

func (d *DB) PutPart(ctx context.Context, part *types.MultipartPart) (*types.MultipartPart, error) {
	u, ok := d.uploads.Load(part.UploadID)
	if !ok {
		return nil, db.ErrUploadNotFound
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.gone {
		return nil, db.ErrUploadNotFound
	}
	cp := *part
	prev := u.parts[part.PartNumber]
	u.parts[part.PartNumber] = &cp
	return prev, nil
}

func (d *DB) ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	u, ok := d.uploads.Load(uploadID)
	if !ok {
		return nil, db.ErrUploadNotFound
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return sortedParts(u.parts), nil
}

func (d *DB) DeleteMultipartUpload(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	u, ok := d.uploads.LoadAndDelete(uploadID)
	if !ok {
		return nil, db.ErrUploadNotFound
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.gone = true
	return sortedParts(u.parts), nil
}

func (d *DB) ListStaleUploads(ctx context.Context, olderThan int64, limit int) ([]*types.MultipartUpload, error) {
	var out []*types.MultipartUpload
	d.uploads.Range(func(_ string, u *upload) bool {
		if u.meta.Initiated <= olderThan {
			cp := *u.meta
			out = append(out, &cp)
		}
		return limit <= 0 || len(out) < limit
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Initiated < out[j].Initiated })
	return out, nil
}

func sortedParts(parts map[int]*types.MultipartPart) []*types.MultipartPart {
	out := make([]*types.MultipartPart, 0, len(parts))
	for _, p := range parts {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out
}

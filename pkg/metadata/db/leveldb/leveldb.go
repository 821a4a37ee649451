// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package leveldb stores object and upload metadata in an embedded LevelDB.
//
// Key layout:
//
//	o/<key>                       -> ObjectMeta
//	x/<expires:020d>/<key>        -> blob id (expiry index)
//	u/<upload id>                 -> MultipartUpload
//	s/<initiated:020d>/<upload id> -> "" (stale-upload index)
//	p/<upload id>/<part:05d>      -> MultipartPart
package leveldb

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/types"
	"github.com/internaltools/credshare/pkg/utils"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const numLocks = 256

// DB is a LevelDB implementation of db.DB. Read-modify-write sequences are
// serialized per key with striped locks and committed as a single batch.
type DB struct {
	db    *leveldb.DB
	dir   string
	locks [numLocks]sync.Mutex

	writeOpts *opt.WriteOptions
}

var _ db.DB = (*DB)(nil)

// Open opens (or creates) the store in dir, recovering a corrupted manifest.
// With sync set every batch is fsync'ed before returning.
func Open(dir string, sync bool) (*DB, error) {
	ldb, err := leveldb.OpenFile(dir, nil)
	if err != nil && !errors.IsCorrupted(err) {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	if errors.IsCorrupted(err) {
		ldb, err = leveldb.RecoverFile(dir, nil)
		if err != nil {
			return nil, fmt.Errorf("recover leveldb %s: %w", dir, err)
		}
	}
	return &DB{
		db:        ldb,
		dir:       dir,
		writeOpts: &opt.WriteOptions{Sync: sync},
	}, nil
}

func (d *DB) Migrate(ctx context.Context) error { return nil }

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &d.locks[h.Sum32()%numLocks]
	mu.Lock()
	return mu.Unlock
}

func serialize[T any](v T) ([]byte, error) {
	buf := utils.SyncPoolGetBuffer()
	defer utils.SyncPoolPutBuffer(buf)
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func deserialize[T any](data []byte) (T, error) {
	var v T
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v)
	return v, err
}

func objectKey(key string) []byte { return []byte("o/" + key) }

func expiryKey(expires int64, key string) []byte {
	return []byte(fmt.Sprintf("x/%020d/%s", expires, key))
}

func uploadKey(id string) []byte { return []byte("u/" + id) }

func staleKey(initiated int64, id string) []byte {
	return []byte(fmt.Sprintf("s/%020d/%s", initiated, id))
}

func partPrefix(id string) []byte { return []byte("p/" + id + "/") }

func partKey(id string, n int) []byte {
	return []byte(fmt.Sprintf("p/%s/%05d", id, n))
}

// ============================================================================
// Objects
// ============================================================================

func (d *DB) getObject(key string) (*types.ObjectMeta, error) {
	data, err := d.db.Get(objectKey(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, db.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	obj, err := deserialize[types.ObjectMeta](data)
	if err != nil {
		return nil, fmt.Errorf("decode object %s: %w", key, err)
	}
	return &obj, nil
}

func (d *DB) GetObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	return d.getObject(key)
}

// replace writes obj over prev (which may be nil) in one batch.
func (d *DB) replace(prev, obj *types.ObjectMeta) error {
	data, err := serialize(obj)
	if err != nil {
		return fmt.Errorf("encode object %s: %w", obj.Key, err)
	}
	batch := new(leveldb.Batch)
	if prev != nil {
		batch.Delete(expiryKey(prev.ExpiresAt, prev.Key))
	}
	batch.Put(objectKey(obj.Key), data)
	batch.Put(expiryKey(obj.ExpiresAt, obj.Key), []byte(obj.BlobID))
	return d.db.Write(batch, d.writeOpts)
}

func (d *DB) SwapObject(ctx context.Context, obj *types.ObjectMeta) (*types.ObjectMeta, error) {
	defer d.lock(obj.Key)()

	prev, err := d.getObject(obj.Key)
	if err != nil && err != db.ErrObjectNotFound {
		return nil, err
	}
	if err := d.replace(prev, obj); err != nil {
		return nil, err
	}
	return prev, nil
}

func (d *DB) InsertObject(ctx context.Context, obj *types.ObjectMeta, now int64) (*types.ObjectMeta, error) {
	defer d.lock(obj.Key)()

	prev, err := d.getObject(obj.Key)
	if err != nil && err != db.ErrObjectNotFound {
		return nil, err
	}
	if prev != nil && prev.ExpiresAt > now {
		return nil, db.ErrObjectExists
	}
	if err := d.replace(prev, obj); err != nil {
		return nil, err
	}
	return prev, nil
}

func (d *DB) remove(prev *types.ObjectMeta) error {
	batch := new(leveldb.Batch)
	batch.Delete(objectKey(prev.Key))
	batch.Delete(expiryKey(prev.ExpiresAt, prev.Key))
	return d.db.Write(batch, d.writeOpts)
}

func (d *DB) DeleteObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	defer d.lock(key)()

	prev, err := d.getObject(key)
	if err == db.ErrObjectNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := d.remove(prev); err != nil {
		return nil, fmt.Errorf("delete object %s: %w", key, err)
	}
	return prev, nil
}

func (d *DB) DeleteObjectIfBlob(ctx context.Context, key, blobID string) (bool, error) {
	defer d.lock(key)()

	prev, err := d.getObject(key)
	if err == db.ErrObjectNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if prev.BlobID != blobID {
		return false, nil
	}
	if err := d.remove(prev); err != nil {
		return false, fmt.Errorf("delete object %s: %w", key, err)
	}
	return true, nil
}

func (d *DB) ListExpiredObjects(ctx context.Context, now int64, limit int) ([]*types.ObjectMeta, error) {
	iter := d.db.NewIterator(&util.Range{
		Start: []byte("x/"),
		Limit: []byte(fmt.Sprintf("x/%020d/\xff", now)),
	}, nil)
	defer iter.Release()

	var out []*types.ObjectMeta
	for iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		// x/<20 digits>/<key>
		key := string(iter.Key()[len("x/")+20+1:])
		obj, err := d.getObject(key)
		if err == db.ErrObjectNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if obj.ExpiresAt <= now {
			out = append(out, obj)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan expiry index: %w", err)
	}
	return out, nil
}

// ============================================================================
// Multipart
// ============================================================================

func (d *DB) getUpload(id string) (*types.MultipartUpload, error) {
	data, err := d.db.Get(uploadKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, db.ErrUploadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload %s: %w", id, err)
	}
	u, err := deserialize[types.MultipartUpload](data)
	if err != nil {
		return nil, fmt.Errorf("decode upload %s: %w", id, err)
	}
	return &u, nil
}

func (d *DB) CreateMultipartUpload(ctx context.Context, u *types.MultipartUpload) error {
	data, err := serialize(u)
	if err != nil {
		return fmt.Errorf("encode upload %s: %w", u.UploadID, err)
	}
	batch := new(leveldb.Batch)
	batch.Put(uploadKey(u.UploadID), data)
	batch.Put(staleKey(u.Initiated, u.UploadID), nil)
	return d.db.Write(batch, d.writeOpts)
}

func (d *DB) GetMultipartUpload(ctx context.Context, uploadID string) (*types.MultipartUpload, error) {
	return d.getUpload(uploadID)
}

func (d *DB) PutPart(ctx context.Context, part *types.MultipartPart) (*types.MultipartPart, error) {
	defer d.lock("upload:" + part.UploadID)()

	if _, err := d.getUpload(part.UploadID); err != nil {
		return nil, err
	}

	var prev *types.MultipartPart
	data, err := d.db.Get(partKey(part.UploadID, part.PartNumber), nil)
	switch err {
	case nil:
		p, err := deserialize[types.MultipartPart](data)
		if err != nil {
			return nil, fmt.Errorf("decode part: %w", err)
		}
		prev = &p
	case leveldb.ErrNotFound:
	default:
		return nil, fmt.Errorf("get part: %w", err)
	}

	enc, err := serialize(part)
	if err != nil {
		return nil, fmt.Errorf("encode part: %w", err)
	}
	if err := d.db.Put(partKey(part.UploadID, part.PartNumber), enc, d.writeOpts); err != nil {
		return nil, fmt.Errorf("put part: %w", err)
	}
	return prev, nil
}

func (d *DB) listParts(id string) ([]*types.MultipartPart, error) {
	iter := d.db.NewIterator(util.BytesPrefix(partPrefix(id)), nil)
	defer iter.Release()

	var parts []*types.MultipartPart
	for iter.Next() {
		p, err := deserialize[types.MultipartPart](iter.Value())
		if err != nil {
			return nil, fmt.Errorf("decode part: %w", err)
		}
		parts = append(parts, &p)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan parts: %w", err)
	}
	return parts, nil
}

func (d *DB) ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	if _, err := d.getUpload(uploadID); err != nil {
		return nil, err
	}
	return d.listParts(uploadID)
}

func (d *DB) DeleteMultipartUpload(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	defer d.lock("upload:" + uploadID)()

	u, err := d.getUpload(uploadID)
	if err != nil {
		return nil, err
	}
	parts, err := d.listParts(uploadID)
	if err != nil {
		return nil, err
	}

	batch := new(leveldb.Batch)
	batch.Delete(uploadKey(uploadID))
	batch.Delete(staleKey(u.Initiated, uploadID))
	for _, p := range parts {
		batch.Delete(partKey(uploadID, p.PartNumber))
	}
	if err := d.db.Write(batch, d.writeOpts); err != nil {
		return nil, fmt.Errorf("delete upload %s: %w", uploadID, err)
	}
	return parts, nil
}

func (d *DB) ListStaleUploads(ctx context.Context, olderThan int64, limit int) ([]*types.MultipartUpload, error) {
	iter := d.db.NewIterator(&util.Range{
		Start: []byte("s/"),
		Limit: []byte(fmt.Sprintf("s/%020d/\xff", olderThan)),
	}, nil)
	defer iter.Release()

	var out []*types.MultipartUpload
	for iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		id := string(iter.Key()[len("s/")+20+1:])
		u, err := d.getUpload(id)
		if err == db.ErrUploadNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan upload index: %w", err)
	}
	return out, nil
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/types"
)

var objectColumns = []string{"object_key", "blob_id", "size", "content_type", "etag", "created_at", "expires_at", "metadata"}

type objectRow struct {
	Key         string `db:"object_key"`
	BlobID      string `db:"blob_id"`
	Size        int64  `db:"size"`
	ContentType string `db:"content_type"`
	ETag        string `db:"etag"`
	CreatedAt   int64  `db:"created_at"`
	ExpiresAt   int64  `db:"expires_at"`
	Metadata    string `db:"metadata"`
}

func (r *objectRow) toMeta() (*types.ObjectMeta, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", r.Key, err)
	}
	return &types.ObjectMeta{
		Key:         r.Key,
		BlobID:      r.BlobID,
		Size:        r.Size,
		ContentType: r.ContentType,
		ETag:        r.ETag,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		Metadata:    meta,
	}, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeMetadata(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) selectObject(ctx context.Context, q sqlx.QueryerContext, key string, lock bool) (*types.ObjectMeta, error) {
	b := s.builder.Select(objectColumns...).From("objects").Where(sq.Eq{"object_key": key})
	if lock && s.dialect.ForUpdate() != "" {
		b = b.Suffix(s.dialect.ForUpdate())
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var row objectRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrObjectNotFound
		}
		return nil, fmt.Errorf("select object %s: %w", key, err)
	}
	return row.toMeta()
}

func (s *Store) GetObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	return s.selectObject(ctx, s.db, key, false)
}

func (s *Store) SwapObject(ctx context.Context, obj *types.ObjectMeta) (*types.ObjectMeta, error) {
	return s.writeObject(ctx, obj, func(*types.ObjectMeta) error { return nil })
}

func (s *Store) InsertObject(ctx context.Context, obj *types.ObjectMeta, now int64) (*types.ObjectMeta, error) {
	return s.writeObject(ctx, obj, func(prev *types.ObjectMeta) error {
		if prev.ExpiresAt > now {
			return db.ErrObjectExists
		}
		return nil
	})
}

// writeObject stores obj, locking and returning the row it replaces. allow
// vetoes replacing an existing row.
func (s *Store) writeObject(ctx context.Context, obj *types.ObjectMeta, allow func(prev *types.ObjectMeta) error) (*types.ObjectMeta, error) {
	meta, err := encodeMetadata(obj.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	var prev *types.ObjectMeta
	err = s.retryOnConflict(func() error {
		prev = nil
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			existing, err := s.selectObject(ctx, tx, obj.Key, true)
			switch {
			case errors.Is(err, db.ErrObjectNotFound):
				query, args, err := s.builder.Insert("objects").Columns(objectColumns...).
					Values(obj.Key, obj.BlobID, obj.Size, obj.ContentType, obj.ETag, obj.CreatedAt, obj.ExpiresAt, meta).
					ToSql()
				if err != nil {
					return err
				}
				_, err = tx.ExecContext(ctx, query, args...)
				return err
			case err != nil:
				return err
			}

			if err := allow(existing); err != nil {
				return err
			}
			query, args, err := s.builder.Update("objects").SetMap(map[string]any{
				"blob_id":      obj.BlobID,
				"size":         obj.Size,
				"content_type": obj.ContentType,
				"etag":         obj.ETag,
				"created_at":   obj.CreatedAt,
				"expires_at":   obj.ExpiresAt,
				"metadata":     meta,
			}).Where(sq.Eq{"object_key": obj.Key}).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
			prev = existing
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, db.ErrObjectExists) {
			return nil, err
		}
		return nil, fmt.Errorf("write object %s: %w", obj.Key, err)
	}
	return prev, nil
}

func (s *Store) DeleteObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	var prev *types.ObjectMeta
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.selectObject(ctx, tx, key, true)
		if err != nil {
			return err
		}
		query, args, err := s.builder.Delete("objects").Where(sq.Eq{"object_key": key}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			prev = existing
		}
		return nil
	})
	if errors.Is(err, db.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete object %s: %w", key, err)
	}
	return prev, nil
}

func (s *Store) DeleteObjectIfBlob(ctx context.Context, key, blobID string) (bool, error) {
	query, args, err := s.builder.Delete("objects").
		Where(sq.Eq{"object_key": key, "blob_id": blobID}).ToSql()
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete object %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListExpiredObjects(ctx context.Context, now int64, limit int) ([]*types.ObjectMeta, error) {
	b := s.builder.Select(objectColumns...).From("objects").
		Where(sq.LtOrEq{"expires_at": now}).
		OrderBy("expires_at ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list expired objects: %w", err)
	}
	out := make([]*types.ObjectMeta, 0, len(rows))
	for i := range rows {
		obj, err := rows[i].toMeta()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}

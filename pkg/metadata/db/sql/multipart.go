// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/types"
)

var (
	uploadColumns = []string{"upload_id", "object_key", "initiated", "content_type", "metadata"}
	partColumns   = []string{"upload_id", "part_number", "blob_id", "size", "etag", "checksum", "last_modified"}
)

type uploadRow struct {
	UploadID    string `db:"upload_id"`
	Key         string `db:"object_key"`
	Initiated   int64  `db:"initiated"`
	ContentType string `db:"content_type"`
	Metadata    string `db:"metadata"`
}

func (r *uploadRow) toUpload() (*types.MultipartUpload, error) {
	meta, err := decodeMetadata(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode metadata for upload %s: %w", r.UploadID, err)
	}
	return &types.MultipartUpload{
		UploadID:    r.UploadID,
		Key:         r.Key,
		Initiated:   r.Initiated,
		ContentType: r.ContentType,
		Metadata:    meta,
	}, nil
}

type partRow struct {
	UploadID     string `db:"upload_id"`
	PartNumber   int    `db:"part_number"`
	BlobID       string `db:"blob_id"`
	Size         int64  `db:"size"`
	ETag         string `db:"etag"`
	Checksum     string `db:"checksum"`
	LastModified int64  `db:"last_modified"`
}

func (r *partRow) toPart() *types.MultipartPart {
	return &types.MultipartPart{
		UploadID:     r.UploadID,
		PartNumber:   r.PartNumber,
		BlobID:       r.BlobID,
		Size:         r.Size,
		ETag:         r.ETag,
		Checksum:     r.Checksum,
		LastModified: r.LastModified,
	}
}

func (s *Store) CreateMultipartUpload(ctx context.Context, u *types.MultipartUpload) error {
	meta, err := encodeMetadata(u.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	query, args, err := s.builder.Insert("multipart_uploads").Columns(uploadColumns...).
		Values(u.UploadID, u.Key, u.Initiated, u.ContentType, meta).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create upload %s: %w", u.UploadID, err)
	}
	return nil
}

func (s *Store) selectUpload(ctx context.Context, q sqlx.QueryerContext, id string, lock bool) (*types.MultipartUpload, error) {
	b := s.builder.Select(uploadColumns...).From("multipart_uploads").Where(sq.Eq{"upload_id": id})
	if lock && s.dialect.ForUpdate() != "" {
		b = b.Suffix(s.dialect.ForUpdate())
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var row uploadRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrUploadNotFound
		}
		return nil, fmt.Errorf("select upload %s: %w", id, err)
	}
	return row.toUpload()
}

func (s *Store) GetMultipartUpload(ctx context.Context, uploadID string) (*types.MultipartUpload, error) {
	return s.selectUpload(ctx, s.db, uploadID, false)
}

func (s *Store) selectParts(ctx context.Context, q sqlx.QueryerContext, id string) ([]*types.MultipartPart, error) {
	query, args, err := s.builder.Select(partColumns...).From("multipart_parts").
		Where(sq.Eq{"upload_id": id}).OrderBy("part_number ASC").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []partRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select parts of %s: %w", id, err)
	}
	parts := make([]*types.MultipartPart, 0, len(rows))
	for i := range rows {
		parts = append(parts, rows[i].toPart())
	}
	return parts, nil
}

func (s *Store) PutPart(ctx context.Context, part *types.MultipartPart) (*types.MultipartPart, error) {
	var prev *types.MultipartPart
	err := s.retryOnConflict(func() error {
		prev = nil
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			// Locking the upload row orders this against DeleteMultipartUpload.
			if _, err := s.selectUpload(ctx, tx, part.UploadID, true); err != nil {
				return err
			}

			b := s.builder.Select(partColumns...).From("multipart_parts").
				Where(sq.Eq{"upload_id": part.UploadID, "part_number": part.PartNumber})
			if s.dialect.ForUpdate() != "" {
				b = b.Suffix(s.dialect.ForUpdate())
			}
			query, args, err := b.ToSql()
			if err != nil {
				return err
			}
			var row partRow
			err = tx.GetContext(ctx, &row, query, args...)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				query, args, err = s.builder.Insert("multipart_parts").Columns(partColumns...).
					Values(part.UploadID, part.PartNumber, part.BlobID, part.Size, part.ETag, part.Checksum, part.LastModified).
					ToSql()
			case err != nil:
				return err
			default:
				prev = row.toPart()
				query, args, err = s.builder.Update("multipart_parts").SetMap(map[string]any{
					"blob_id":       part.BlobID,
					"size":          part.Size,
					"etag":          part.ETag,
					"checksum":      part.Checksum,
					"last_modified": part.LastModified,
				}).Where(sq.Eq{"upload_id": part.UploadID, "part_number": part.PartNumber}).ToSql()
			}
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, query, args...)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("put part %d of %s: %w", part.PartNumber, part.UploadID, err)
	}
	return prev, nil
}

func (s *Store) ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	if _, err := s.GetMultipartUpload(ctx, uploadID); err != nil {
		return nil, err
	}
	return s.selectParts(ctx, s.db, uploadID)
}

func (s *Store) DeleteMultipartUpload(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	var parts []*types.MultipartPart
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.selectUpload(ctx, tx, uploadID, true); err != nil {
			return err
		}
		var err error
		parts, err = s.selectParts(ctx, tx, uploadID)
		if err != nil {
			return err
		}

		query, args, err := s.builder.Delete("multipart_parts").Where(sq.Eq{"upload_id": uploadID}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}

		query, args, err = s.builder.Delete("multipart_uploads").Where(sq.Eq{"upload_id": uploadID}).ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return db.ErrUploadNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, db.ErrUploadNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete upload %s: %w", uploadID, err)
	}
	return parts, nil
}

func (s *Store) ListStaleUploads(ctx context.Context, olderThan int64, limit int) ([]*types.MultipartUpload, error) {
	b := s.builder.Select(uploadColumns...).From("multipart_uploads").
		Where(sq.LtOrEq{"initiated": olderThan}).
		OrderBy("initiated ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []uploadRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list stale uploads: %w", err)
	}
	out := make([]*types.MultipartUpload, 0, len(rows))
	for i := range rows {
		u, err := rows[i].toUpload()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/events"
	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/types"
)

// CreateMultipartUpload starts an upload for key. Size in opts is ignored.
func (s *Store) CreateMultipartUpload(ctx context.Context, key string, opts PutOptions) (upload *types.MultipartUpload, err error) {
	start := time.Now()
	defer func() { observe("create_upload", start, err) }()

	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if !s.cfg.AllowOverwrite {
		if err := s.checkVacant(ctx, "create upload", key); err != nil {
			return nil, err
		}
	}

	upload = &types.MultipartUpload{
		UploadID:    uuid.NewString(),
		Key:         key,
		Initiated:   time.Now().UnixNano(),
		ContentType: opts.ContentType,
		Metadata:    maps.Clone(opts.Metadata),
	}
	if err := s.meta.CreateMultipartUpload(ctx, upload); err != nil {
		return nil, unavailable("create upload", key, err)
	}

	logger.Ctx(ctx).Debug().
		Str("key", key).
		Str("upload_id", upload.UploadID).
		Msg("multipart upload created")
	return upload, nil
}

// UploadPart stores one part. Re-uploading a part number replaces it.
func (s *Store) UploadPart(ctx context.Context, key, uploadID string, partNumber int, payload io.Reader, size int64) (part *types.MultipartPart, err error) {
	start := time.Now()
	defer func() { observe("upload_part", start, err) }()

	if err := validatePartNumber(partNumber); err != nil {
		return nil, err
	}
	if _, err := s.getUpload(ctx, "upload part", key, uploadID); err != nil {
		return nil, err
	}

	blob, err := s.writeBlob(ctx, "upload part", key, payload, size)
	if err != nil {
		return nil, err
	}

	part = &types.MultipartPart{
		UploadID:     uploadID,
		PartNumber:   partNumber,
		BlobID:       blob.ID,
		Size:         blob.Size,
		ETag:         blob.ETag,
		Checksum:     blob.Checksum,
		LastModified: time.Now().UnixNano(),
	}
	prev, err := s.meta.PutPart(ctx, part)
	if err != nil {
		s.deleteBlob(ctx, blob.ID)
		if errors.Is(err, db.ErrUploadNotFound) {
			return nil, newError("upload part", key, ErrNoSuchUpload, nil)
		}
		return nil, unavailable("upload part", key, err)
	}
	if prev != nil && prev.BlobID != part.BlobID {
		s.deleteBlob(ctx, prev.BlobID)
	}

	BytesTotal.WithLabelValues("in").Add(float64(part.Size))
	return part, nil
}

// CompleteMultipartUpload assembles the listed parts, in ascending part
// order, into the object at key. The upload is consumed even when the final
// commit fails.
func (s *Store) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []types.CompletedPart) (meta *types.ObjectMeta, err error) {
	start := time.Now()
	defer func() { observe("complete_upload", start, err) }()

	const op = "complete upload"

	if len(parts) == 0 {
		return nil, newError(op, key, ErrInvalidPart, errors.New("no parts given"))
	}
	upload, err := s.getUpload(ctx, op, key, uploadID)
	if err != nil {
		return nil, err
	}
	stored, err := s.meta.ListParts(ctx, uploadID)
	if errors.Is(err, db.ErrUploadNotFound) {
		return nil, newError(op, key, ErrNoSuchUpload, nil)
	}
	if err != nil {
		return nil, unavailable(op, key, err)
	}

	byNumber := make(map[int]*types.MultipartPart, len(stored))
	for _, p := range stored {
		byNumber[p.PartNumber] = p
	}

	blobIDs := make([]string, 0, len(parts))
	var total int64
	for i, cp := range parts {
		if err := validatePartNumber(cp.PartNumber); err != nil {
			return nil, err
		}
		if i > 0 && cp.PartNumber <= parts[i-1].PartNumber {
			return nil, newError(op, key, ErrInvalidPartOrder, nil)
		}
		p, ok := byNumber[cp.PartNumber]
		if !ok {
			return nil, newError(op, key, ErrInvalidPart, fmt.Errorf("part %d was not uploaded", cp.PartNumber))
		}
		if !strings.EqualFold(strings.Trim(cp.ETag, `"`), p.ETag) {
			return nil, newError(op, key, ErrInvalidPart, fmt.Errorf("part %d etag mismatch", cp.PartNumber))
		}
		if i < len(parts)-1 && p.Size < s.cfg.MinPartSize {
			return nil, newError(op, key, ErrInvalidPart, fmt.Errorf("part %d is smaller than the minimum part size", cp.PartNumber))
		}
		total += p.Size
		blobIDs = append(blobIDs, p.BlobID)
	}
	if total > s.cfg.MaxObjectSize {
		return nil, newError(op, key, ErrTooLarge, nil)
	}

	pr := &partsReader{ctx: ctx, blobs: s.blobs, ids: blobIDs}
	blob, err := s.writeBlob(ctx, op, key, pr, total)
	pr.Close()
	if err != nil {
		return nil, err
	}

	// Whoever removes the upload record owns its parts; a concurrent
	// complete, abort or sweep that got there first wins.
	removed, err := s.meta.DeleteMultipartUpload(ctx, uploadID)
	if err != nil {
		s.deleteBlob(ctx, blob.ID)
		if errors.Is(err, db.ErrUploadNotFound) {
			return nil, newError(op, key, ErrNoSuchUpload, nil)
		}
		return nil, unavailable(op, key, err)
	}

	now := time.Now()
	meta = &types.ObjectMeta{
		Key:         key,
		BlobID:      blob.ID,
		Size:        blob.Size,
		ContentType: upload.ContentType,
		ETag:        blob.ETag,
		CreatedAt:   now.UnixNano(),
		ExpiresAt:   now.Add(s.cfg.Retention).UnixNano(),
		Metadata:    upload.Metadata,
	}
	err = s.commit(ctx, op, meta, now)
	for _, p := range removed {
		s.deleteBlob(ctx, p.BlobID)
	}
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.EventUpload, key, meta.Size)
	s.notify(ctx, events.EventObjectCreatedCompleteUpload, meta)

	logger.Ctx(ctx).Debug().
		Str("key", key).
		Str("upload_id", uploadID).
		Int("parts", len(parts)).
		Int64("size", meta.Size).
		Msg("multipart upload completed")

	return meta.Clone(), nil
}

// AbortMultipartUpload discards an upload and its parts.
func (s *Store) AbortMultipartUpload(ctx context.Context, key, uploadID string) (err error) {
	start := time.Now()
	defer func() { observe("abort_upload", start, err) }()

	if _, err := s.getUpload(ctx, "abort upload", key, uploadID); err != nil {
		return err
	}
	removed, err := s.meta.DeleteMultipartUpload(ctx, uploadID)
	if errors.Is(err, db.ErrUploadNotFound) {
		return newError("abort upload", key, ErrNoSuchUpload, nil)
	}
	if err != nil {
		return unavailable("abort upload", key, err)
	}
	for _, p := range removed {
		s.deleteBlob(ctx, p.BlobID)
	}
	return nil
}

// ListParts returns the uploaded parts ordered by part number.
func (s *Store) ListParts(ctx context.Context, key, uploadID string) (parts []*types.MultipartPart, err error) {
	start := time.Now()
	defer func() { observe("list_parts", start, err) }()

	if _, err := s.getUpload(ctx, "list parts", key, uploadID); err != nil {
		return nil, err
	}
	parts, err = s.meta.ListParts(ctx, uploadID)
	if errors.Is(err, db.ErrUploadNotFound) {
		return nil, newError("list parts", key, ErrNoSuchUpload, nil)
	}
	if err != nil {
		return nil, unavailable("list parts", key, err)
	}
	return parts, nil
}

// getUpload resolves uploadID and checks that it belongs to key.
func (s *Store) getUpload(ctx context.Context, op, key, uploadID string) (*types.MultipartUpload, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if uploadID == "" {
		return nil, newError(op, key, ErrNoSuchUpload, nil)
	}
	upload, err := s.meta.GetMultipartUpload(ctx, uploadID)
	if errors.Is(err, db.ErrUploadNotFound) {
		return nil, newError(op, key, ErrNoSuchUpload, nil)
	}
	if err != nil {
		return nil, unavailable(op, key, err)
	}
	if upload.Key != key {
		return nil, newError(op, key, ErrNoSuchUpload, nil)
	}
	return upload, nil
}

// partsReader reads part blobs back to back, opening each only when the
// previous one is exhausted.
type partsReader struct {
	ctx   context.Context
	blobs types.BackendStorage
	ids   []string
	cur   io.ReadCloser
}

func (p *partsReader) Read(b []byte) (int, error) {
	for {
		if p.cur == nil {
			if len(p.ids) == 0 {
				return 0, io.EOF
			}
			rc, err := p.blobs.Read(p.ctx, p.ids[0])
			if err != nil {
				return 0, fmt.Errorf("read part blob %s: %w", p.ids[0], err)
			}
			p.ids = p.ids[1:]
			p.cur = rc
		}
		n, err := p.cur.Read(b)
		if errors.Is(err, io.EOF) {
			p.cur.Close()
			p.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (p *partsReader) Close() error {
	if p.cur == nil {
		return nil
	}
	err := p.cur.Close()
	p.cur = nil
	return err
}

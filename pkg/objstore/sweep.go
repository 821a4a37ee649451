// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"context"
	"errors"
	"time"

	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/events"
	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/metadata/db"
	"github.com/internaltools/credshare/pkg/types"
)

// SweepResult reports what one sweep purged.
type SweepResult struct {
	Objects int `json:"objects"`
	Uploads int `json:"uploads"`
}

// SweepExpired purges objects whose expiry has passed and aborts multipart
// uploads older than the upload grace period. Running it again right after
// purges nothing; concurrent sweeps and client writes are safe because a
// record is only removed while it still points at the blob the sweep saw.
func (s *Store) SweepExpired(ctx context.Context) (res SweepResult, err error) {
	start := time.Now()
	defer func() { observe("sweep", start, err) }()

	now := time.Now()
	var errs []error

	n, err := s.sweepObjects(ctx, now)
	res.Objects = n
	if err != nil {
		errs = append(errs, err)
	}

	n, err = s.sweepUploads(ctx, now)
	res.Uploads = n
	if err != nil {
		errs = append(errs, err)
	}

	l := logger.Ctx(ctx)
	if res.Objects > 0 || res.Uploads > 0 {
		l.Info().
			Int("objects", res.Objects).
			Int("uploads", res.Uploads).
			Dur("took", time.Since(start)).
			Msg("sweep purged expired data")
	}
	if len(errs) > 0 {
		return res, unavailable("sweep", "", errors.Join(errs...))
	}
	return res, nil
}

func (s *Store) sweepObjects(ctx context.Context, now time.Time) (int, error) {
	purged := 0
	for {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		batch, err := s.meta.ListExpiredObjects(ctx, now.UnixNano(), s.cfg.SweepBatch)
		if err != nil {
			return purged, err
		}

		removed := 0
		var errs []error
		for _, obj := range batch {
			ok, err := s.meta.DeleteObjectIfBlob(ctx, obj.Key, obj.BlobID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !ok {
				// Overwritten or deleted since it was listed.
				continue
			}
			removed++
			s.purged(ctx, obj)
		}
		purged += removed

		if len(errs) > 0 {
			return purged, errors.Join(errs...)
		}
		if len(batch) < s.cfg.SweepBatch || removed == 0 {
			return purged, nil
		}
	}
}

func (s *Store) purged(ctx context.Context, obj *types.ObjectMeta) {
	s.deleteBlob(ctx, obj.BlobID)
	ObjectsExpiredTotal.Inc()
	s.record(ctx, audit.EventExpire, obj.Key, obj.Size)
	s.notify(ctx, events.EventLifecycleExpirationDelete, obj)
}

func (s *Store) sweepUploads(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.cfg.UploadGrace).UnixNano()
	aborted := 0
	for {
		if err := ctx.Err(); err != nil {
			return aborted, err
		}
		batch, err := s.meta.ListStaleUploads(ctx, cutoff, s.cfg.SweepBatch)
		if err != nil {
			return aborted, err
		}

		removed := 0
		var errs []error
		for _, u := range batch {
			parts, err := s.meta.DeleteMultipartUpload(ctx, u.UploadID)
			if errors.Is(err, db.ErrUploadNotFound) {
				continue
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			removed++

			var size int64
			for _, p := range parts {
				size += p.Size
				s.deleteBlob(ctx, p.BlobID)
			}
			UploadsAbortedTotal.Inc()
			s.record(ctx, audit.EventAbort, u.Key, size)
			s.notifier.Emit(ctx, events.EventLifecycleAbortUpload, events.Object{Key: u.Key, Size: size})

			logger.Ctx(ctx).Debug().
				Str("key", u.Key).
				Str("upload_id", u.UploadID).
				Int("parts", len(parts)).
				Msg("aborted incomplete multipart upload")
		}
		aborted += removed

		if len(errs) > 0 {
			return aborted, errors.Join(errs...)
		}
		if len(batch) < s.cfg.SweepBatch || removed == 0 {
			return aborted, nil
		}
	}
}

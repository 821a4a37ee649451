// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/internaltools/credshare/pkg/types"
	"github.com/rs/zerolog/log"
)

const exportKeyLayout = "2006-01-02-15-04-05"

// Exporter periodically copies new entries into a log destination backend as
// access-log objects named <prefix>YYYY-MM-DD-HH-MM-SS-<id>.
type Exporter struct {
	store   Store
	dest    types.BackendStorage
	cfg     Config
	metrics *Metrics

	mu     sync.Mutex
	cursor Cursor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExporter(cfg Config, store Store, dest types.BackendStorage) *Exporter {
	cfg.Validate()
	return &Exporter{
		store:   store,
		dest:    dest,
		cfg:     cfg,
		metrics: NewMetrics(),
	}
}

// Start begins the background export loop.
func (e *Exporter) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go e.exportLoop(ctx)
	log.Info().
		Dur("interval", e.cfg.ExportInterval).
		Str("prefix", e.cfg.ExportPrefix).
		Msg("access log exporter started")
}

// Stop cancels the loop after a final export.
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	log.Info().Msg("access log exporter stopped")
}

func (e *Exporter) exportLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			if _, err := e.ExportNow(fctx); err != nil {
				log.Error().Err(err).Msg("final access log export failed")
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := e.ExportNow(ctx); err != nil {
				log.Error().Err(err).Msg("access log export failed")
			}
		}
	}
}

// ExportNow writes every entry recorded since the previous export and
// returns the number of entries exported.
func (e *Exporter) ExportNow(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cursor.Time.IsZero() {
		e.cursor = Cursor{Time: time.Now().Add(-e.cfg.ExportInterval)}
	}

	total := 0
	for {
		n, err := e.exportBatch(ctx)
		total += n
		if err != nil {
			e.metrics.ExportErrors.Inc()
			return total, err
		}
		if n < e.cfg.ExportBatch {
			return total, nil
		}
	}
}

func (e *Exporter) exportBatch(ctx context.Context) (int, error) {
	start := time.Now()

	entries, err := e.store.Since(ctx, e.cursor, e.cfg.ExportBatch)
	if err != nil {
		return 0, fmt.Errorf("query entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	formatted := FormatLines(e.cfg.Bucket, entries)
	now := time.Now()
	key := fmt.Sprintf("%s%s-%s",
		e.cfg.ExportPrefix,
		now.UTC().Format(exportKeyLayout),
		uuid.New().String()[:8],
	)

	if err := e.dest.Write(ctx, key, bytes.NewReader(formatted), int64(len(formatted))); err != nil {
		return 0, fmt.Errorf("write log object: %w", err)
	}
	if exp, ok := e.dest.(types.Expirer); ok {
		if err := exp.ExpireAt(ctx, key, now.Add(e.cfg.Retention)); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to set expiry on log object")
		}
	}

	e.cursor = After(entries[len(entries)-1])

	e.metrics.ExportsTotal.Inc()
	e.metrics.ExportedLogs.Add(float64(len(entries)))
	e.metrics.ExportDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Str("key", key).
		Int("count", len(entries)).
		Int("bytes", len(formatted)).
		Dur("duration", time.Since(start)).
		Msg("exported access logs")

	return len(entries), nil
}

// Prune deletes exported log objects older than the retention window. It
// needs a destination that can list keys; others are skipped.
func (e *Exporter) Prune(ctx context.Context, now time.Time) (int, error) {
	lister, ok := e.dest.(types.Lister)
	if !ok {
		return 0, nil
	}
	keys, err := lister.List(ctx, e.cfg.ExportPrefix)
	if err != nil {
		return 0, fmt.Errorf("list log objects: %w", err)
	}

	cutoff := now.Add(-e.cfg.Retention)
	removed := 0
	for _, key := range keys {
		written, ok := exportTime(strings.TrimPrefix(key, e.cfg.ExportPrefix))
		if !ok || !written.Before(cutoff) {
			continue
		}
		if err := e.dest.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("delete log object %s: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// exportTime parses the timestamp part of an export object name.
func exportTime(name string) (time.Time, bool) {
	if len(name) < len(exportKeyLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(exportKeyLayout, name[:len(exportKeyLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

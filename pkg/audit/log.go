// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Log is the audit trail used by the object store: a collector in front of a
// Store, with an optional exporter and a retention sweep.
type Log struct {
	cfg       Config
	store     Store
	collector *Collector
	exporter  *Exporter
	metrics   *Metrics
}

func New(cfg Config, store Store) *Log {
	cfg.Validate()
	return &Log{
		cfg:       cfg,
		store:     store,
		collector: NewCollector(cfg, store),
		metrics:   NewMetrics(),
	}
}

// WithExporter attaches an exporter started and stopped along with the log.
func (l *Log) WithExporter(e *Exporter) *Log {
	l.exporter = e
	return l
}

// Record is fire-and-forget. It never blocks and never reports failure.
func (l *Log) Record(e Entry) {
	l.collector.Record(e)
}

func (l *Log) Start(ctx context.Context) {
	l.collector.Start(ctx)
	if l.exporter != nil {
		l.exporter.Start(ctx)
	}
}

// Stop flushes the collector before the exporter's final pass.
func (l *Log) Stop() {
	l.collector.Stop()
	if l.exporter != nil {
		l.exporter.Stop()
	}
}

func (l *Log) Flush(ctx context.Context) error {
	return l.collector.Flush(ctx)
}

func (l *Log) Retention() time.Duration {
	return l.cfg.Retention
}

// SweepExpiredLogs removes entries older than the retention window and
// returns how many were removed.
func (l *Log) SweepExpiredLogs(ctx context.Context) (int, error) {
	now := time.Now()
	n, err := l.store.DeleteBefore(ctx, now.Add(-l.cfg.Retention))
	if err != nil {
		l.metrics.SweepErrors.Inc()
		return 0, fmt.Errorf("sweep audit log: %w", err)
	}
	l.metrics.EntriesExpired.Add(float64(n))

	if l.exporter != nil {
		pruned, err := l.exporter.Prune(ctx, now)
		if err != nil {
			l.metrics.SweepErrors.Inc()
			return n, fmt.Errorf("prune exported logs: %w", err)
		}
		if pruned > 0 {
			log.Info().Int("objects", pruned).Msg("pruned exported access logs")
		}
	}
	return n, nil
}

// Query returns entries for q oldest first. Limit defaults to
// DefaultQueryLimit and is capped at MaxQueryLimit.
func (l *Log) Query(ctx context.Context, q Query) ([]Entry, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	if !q.Start.IsZero() && !q.End.IsZero() && !q.Start.Before(q.End) {
		return nil, nil
	}
	return l.store.Query(ctx, q)
}

func (l *Log) Close() error {
	return l.store.Close()
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit log.
type Metrics struct {
	// Collector metrics
	EventsRecorded *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	EventsFlushed  prometheus.Counter
	FlushRetries   prometheus.Counter
	FlushErrors    prometheus.Counter
	FlushDuration  prometheus.Histogram

	// Retention sweep
	EntriesExpired prometheus.Counter
	SweepErrors    prometheus.Counter

	// Exporter metrics
	ExportsTotal   prometheus.Counter
	ExportErrors   prometheus.Counter
	ExportDuration prometheus.Histogram
	ExportedLogs   prometheus.Counter

	// Store metrics
	InsertDuration prometheus.Histogram
	QueryDuration  prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide audit metrics, registering them on first use.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "events_recorded_total",
				Help:      "Total number of audit events accepted into the buffer",
			}, []string{"event"}),
			EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "events_dropped_total",
				Help:      "Total number of audit events dropped (full buffer or exhausted retries)",
			}),
			EventsFlushed: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "events_flushed_total",
				Help:      "Total number of audit events written to the store",
			}),
			FlushRetries: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "flush_retries_total",
				Help:      "Total number of audit flush retries",
			}),
			FlushErrors: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "flush_errors_total",
				Help:      "Total number of audit batches dropped after retries",
			}),
			FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "flush_duration_seconds",
				Help:      "Duration of audit batch flushes",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			}),
			EntriesExpired: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "entries_expired_total",
				Help:      "Total number of audit entries removed by the retention sweep",
			}),
			SweepErrors: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "sweep_errors_total",
				Help:      "Total number of failed audit retention sweeps",
			}),
			ExportsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "exports_total",
				Help:      "Total number of access log exports",
			}),
			ExportErrors: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "export_errors_total",
				Help:      "Total number of access log export errors",
			}),
			ExportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "export_duration_seconds",
				Help:      "Duration of access log exports",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			}),
			ExportedLogs: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "exported_logs_total",
				Help:      "Total number of entries written to the log destination",
			}),
			InsertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "insert_duration_seconds",
				Help:      "Duration of ClickHouse batch inserts",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			}),
			QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "credshare",
				Subsystem: "audit",
				Name:      "query_duration_seconds",
				Help:      "Duration of ClickHouse queries",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			}),
		}
	})
	return metricsInstance
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"errors"
	"time"

	"github.com/internaltools/credshare/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for database operations
var (
	dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "credshare_db_query_duration_seconds",
			Help:    "Duration of metadata store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation", "status"},
	)

	dbQueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credshare_db_queries_total",
			Help: "Total number of metadata store operations",
		},
		[]string{"operation", "status"},
	)

	dbConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "credshare_db_connections_active",
			Help: "Number of active database connections",
		},
	)

	dbConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "credshare_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		dbQueryDuration,
		dbQueryTotal,
		dbConnectionsActive,
		dbConnectionsIdle,
	)
}

// UpdateConnectionMetrics updates connection pool metrics from sql.DBStats
func UpdateConnectionMetrics(inUse, idle int) {
	dbConnectionsActive.Set(float64(inUse))
	dbConnectionsIdle.Set(float64(idle))
}

// recordMetric records timing and status for an operation. Expected
// outcomes such as not-found are not counted as errors.
func recordMetric(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrUploadNotFound), errors.Is(err, ErrObjectExists):
		status = "miss"
	default:
		status = "error"
	}
	dbQueryDuration.WithLabelValues(operation, status).Observe(duration)
	dbQueryTotal.WithLabelValues(operation, status).Inc()
}

// MetricsDB wraps a DB implementation and adds metrics instrumentation
type MetricsDB struct {
	db DB
}

var _ DB = (*MetricsDB)(nil)

// NewMetricsDB creates a new metrics-instrumented DB wrapper
func NewMetricsDB(db DB) *MetricsDB {
	return &MetricsDB{db: db}
}

// Unwrap returns the underlying DB implementation
func (m *MetricsDB) Unwrap() DB {
	return m.db
}

// Close closes the database connection
func (m *MetricsDB) Close() error {
	return m.db.Close()
}

// Migrate runs database migrations
func (m *MetricsDB) Migrate(ctx context.Context) error {
	start := time.Now()
	err := m.db.Migrate(ctx)
	recordMetric("migrate", start, err)
	return err
}

// ============================================================================
// ObjectStore implementation
// ============================================================================

func (m *MetricsDB) GetObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	start := time.Now()
	obj, err := m.db.GetObject(ctx, key)
	recordMetric("get_object", start, err)
	return obj, err
}

func (m *MetricsDB) SwapObject(ctx context.Context, obj *types.ObjectMeta) (*types.ObjectMeta, error) {
	start := time.Now()
	prev, err := m.db.SwapObject(ctx, obj)
	recordMetric("swap_object", start, err)
	return prev, err
}

func (m *MetricsDB) InsertObject(ctx context.Context, obj *types.ObjectMeta, now int64) (*types.ObjectMeta, error) {
	start := time.Now()
	prev, err := m.db.InsertObject(ctx, obj, now)
	recordMetric("insert_object", start, err)
	return prev, err
}

func (m *MetricsDB) DeleteObject(ctx context.Context, key string) (*types.ObjectMeta, error) {
	start := time.Now()
	prev, err := m.db.DeleteObject(ctx, key)
	recordMetric("delete_object", start, err)
	return prev, err
}

func (m *MetricsDB) DeleteObjectIfBlob(ctx context.Context, key, blobID string) (bool, error) {
	start := time.Now()
	ok, err := m.db.DeleteObjectIfBlob(ctx, key, blobID)
	recordMetric("delete_object_if_blob", start, err)
	return ok, err
}

func (m *MetricsDB) ListExpiredObjects(ctx context.Context, now int64, limit int) ([]*types.ObjectMeta, error) {
	start := time.Now()
	objs, err := m.db.ListExpiredObjects(ctx, now, limit)
	recordMetric("list_expired_objects", start, err)
	return objs, err
}

// ============================================================================
// MultipartStore implementation
// ============================================================================

func (m *MetricsDB) CreateMultipartUpload(ctx context.Context, upload *types.MultipartUpload) error {
	start := time.Now()
	err := m.db.CreateMultipartUpload(ctx, upload)
	recordMetric("create_multipart_upload", start, err)
	return err
}

func (m *MetricsDB) GetMultipartUpload(ctx context.Context, uploadID string) (*types.MultipartUpload, error) {
	start := time.Now()
	upload, err := m.db.GetMultipartUpload(ctx, uploadID)
	recordMetric("get_multipart_upload", start, err)
	return upload, err
}

func (m *MetricsDB) PutPart(ctx context.Context, part *types.MultipartPart) (*types.MultipartPart, error) {
	start := time.Now()
	prev, err := m.db.PutPart(ctx, part)
	recordMetric("put_part", start, err)
	return prev, err
}

func (m *MetricsDB) ListParts(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	start := time.Now()
	parts, err := m.db.ListParts(ctx, uploadID)
	recordMetric("list_parts", start, err)
	return parts, err
}

func (m *MetricsDB) DeleteMultipartUpload(ctx context.Context, uploadID string) ([]*types.MultipartPart, error) {
	start := time.Now()
	parts, err := m.db.DeleteMultipartUpload(ctx, uploadID)
	recordMetric("delete_multipart_upload", start, err)
	return parts, err
}

func (m *MetricsDB) ListStaleUploads(ctx context.Context, olderThan int64, limit int) ([]*types.MultipartUpload, error) {
	start := time.Now()
	uploads, err := m.db.ListStaleUploads(ctx, olderThan, limit)
	recordMetric("list_stale_uploads", start, err)
	return uploads, err
}

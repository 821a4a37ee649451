// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"github.com/internaltools/credshare/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OperationsTotal counts store operations by operation and outcome
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "objstore",
		Name:      "operations_total",
		Help:      "Total number of object store operations",
	}, []string{"op", "status"}) // status: "ok", "not_found", "conflict", "invalid", "unavailable"

	// OperationDuration tracks operation latency
	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "credshare",
		Subsystem: "objstore",
		Name:      "operation_duration_seconds",
		Help:      "Object store operation latency",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"op"})

	// BytesTotal counts payload bytes written and served
	BytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "objstore",
		Name:      "bytes_total",
		Help:      "Payload bytes written and read",
	}, []string{"direction"}) // direction: "in", "out"

	// ExpiredReadsTotal counts reads refused because the object had expired
	// but was not yet swept
	ExpiredReadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "objstore",
		Name:      "expired_reads_total",
		Help:      "Reads refused for expired, not yet purged objects",
	})

	// ObjectsExpiredTotal counts objects purged by the sweep
	ObjectsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "objstore",
		Name:      "objects_expired_total",
		Help:      "Objects purged by the expiry sweep",
	})

	// UploadsAbortedTotal counts incomplete multipart uploads purged by the sweep
	UploadsAbortedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "objstore",
		Name:      "uploads_aborted_total",
		Help:      "Incomplete multipart uploads aborted by the sweep",
	})

	// BlobDeleteErrorsTotal counts payload blobs that could not be removed
	BlobDeleteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "objstore",
		Name:      "blob_delete_errors_total",
		Help:      "Payload blobs that failed to delete",
	})
)

func init() {
	debug.Registry().MustRegister(
		OperationsTotal,
		OperationDuration,
		BytesTotal,
		ExpiredReadsTotal,
		ObjectsExpiredTotal,
		UploadsAbortedTotal,
		BlobDeleteErrorsTotal,
	)
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isNotFound(err):
		return "not_found"
	case isConflict(err):
		return "conflict"
	case isInvalid(err):
		return "invalid"
	default:
		return "unavailable"
	}
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"github.com/internaltools/credshare/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "lifecycle",
		Name:      "runs_total",
		Help:      "Total number of sweep runs",
	}, []string{"job"}) // job: "objects", "logs"

	sweepErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "lifecycle",
		Name:      "errors_total",
		Help:      "Total number of failed sweep runs",
	}, []string{"job"})

	sweepPurgedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "lifecycle",
		Name:      "purged_total",
		Help:      "Records purged by sweeps",
	}, []string{"kind"}) // kind: "objects", "uploads", "logs"

	sweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "credshare",
		Subsystem: "lifecycle",
		Name:      "run_duration_seconds",
		Help:      "Duration of sweep runs",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"job"})

	sweepLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "credshare",
		Subsystem: "lifecycle",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful sweep run",
	}, []string{"job"})
)

func init() {
	debug.Registry().MustRegister(
		sweepRunsTotal,
		sweepErrorsTotal,
		sweepPurgedTotal,
		sweepDuration,
		sweepLastSuccess,
	)
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/internaltools/credshare/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status class",
	}, []string{"route", "method", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "credshare",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client rate limit",
	})
)

func init() {
	debug.Registry().MustRegister(
		requestsTotal,
		requestDuration,
		rateLimitedTotal,
	)
}

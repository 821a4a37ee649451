// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"github.com/internaltools/credshare/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsEmittedTotal tracks events accepted for delivery by event type
	EventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Total number of events queued for delivery",
	}, []string{"event_type"})

	// EventsDroppedTotal tracks events dropped (disabled emitter or full queue)
	EventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Total number of events dropped before delivery",
	}, []string{"reason"}) // reason: "disabled", "queue_full", "marshal", "stopped"

	// EventsDeliveredTotal tracks events delivered by publisher
	EventsDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "events",
		Name:      "delivered_total",
		Help:      "Total number of events delivered to publishers",
	}, []string{"publisher"})

	// EventsDeliveryErrorsTotal tracks delivery errors by publisher
	EventsDeliveryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credshare",
		Subsystem: "events",
		Name:      "delivery_errors_total",
		Help:      "Total number of event delivery errors",
	}, []string{"publisher"})

	// EventsDeliveryDuration tracks delivery latency by publisher
	EventsDeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "credshare",
		Subsystem: "events",
		Name:      "delivery_duration_seconds",
		Help:      "Time spent delivering events to publishers",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"publisher"})

	// EventsQueueDepth tracks current event queue depth
	EventsQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "credshare",
		Subsystem: "events",
		Name:      "queue_depth",
		Help:      "Current number of events pending delivery",
	})
)

func init() {
	debug.Registry().MustRegister(
		EventsEmittedTotal,
		EventsDroppedTotal,
		EventsDeliveredTotal,
		EventsDeliveryErrorsTotal,
		EventsDeliveryDuration,
		EventsQueueDepth,
	)
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Publisher is the interface for event notification backends.
type Publisher interface {
	// Name identifies the publisher in logs and metrics.
	Name() string

	// Publish sends data. key orders related events (the object key).
	Publish(ctx context.Context, eventName EventType, key string, data []byte) error

	Close() error
}

type delivery struct {
	name EventType
	key  string
	data []byte
}

// Emitter queues notifications and delivers them to every publisher from a
// single dispatcher goroutine, so events for one key arrive in emit order.
type Emitter struct {
	publishers []Publisher
	enabled    bool
	region     string
	timeout    time.Duration

	queue    chan delivery
	done     chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once

	// monotonic counter for sequencer values
	sequencer atomic.Uint64
}

// NewEmitter creates an emitter delivering to publishers. It is disabled
// when cfg.Enabled is false or there are no publishers.
func NewEmitter(cfg Config, publishers ...Publisher) *Emitter {
	cfg.Validate()
	return &Emitter{
		publishers: publishers,
		enabled:    cfg.Enabled && len(publishers) > 0,
		region:     cfg.Region,
		timeout:    cfg.PublishTimeout,
		queue:      make(chan delivery, cfg.BufferSize),
		done:       make(chan struct{}),
	}
}

// NoopEmitter returns an emitter that drops all events.
func NoopEmitter() *Emitter {
	return NewEmitter(Config{})
}

// IsEnabled returns whether the emitter is enabled.
func (e *Emitter) IsEnabled() bool {
	return e.enabled
}

// Emit queues a notification. It never blocks: when the queue is full the
// event is dropped and counted.
func (e *Emitter) Emit(ctx context.Context, eventType EventType, obj Object) {
	if !e.enabled {
		EventsDroppedTotal.WithLabelValues("disabled").Inc()
		return
	}
	if e.stopped.Load() {
		EventsDroppedTotal.WithLabelValues("stopped").Inc()
		return
	}

	data, err := json.Marshal(e.build(ctx, eventType, obj))
	if err != nil {
		EventsDroppedTotal.WithLabelValues("marshal").Inc()
		logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to marshal event")
		return
	}

	select {
	case e.queue <- delivery{name: eventType, key: obj.Key, data: data}:
		EventsEmittedTotal.WithLabelValues(string(eventType)).Inc()
		EventsQueueDepth.Inc()
	default:
		EventsDroppedTotal.WithLabelValues("queue_full").Inc()
		logger.Warn().
			Str("event", string(eventType)).
			Str("key", obj.Key).
			Msg("event queue full, event dropped")
	}
}

func (e *Emitter) build(ctx context.Context, eventType EventType, obj Object) *Notification {
	info := audit.RequestInfoFrom(ctx)
	entity := ObjectEntity{
		Key:       obj.Key,
		Size:      obj.Size,
		ETag:      obj.ETag,
		Sequencer: e.nextSequencer(),
	}
	if !obj.ExpiresAt.IsZero() {
		exp := obj.ExpiresAt.UTC()
		entity.ExpiresAt = &exp
	}
	return &Notification{
		Records: []Record{{
			EventVersion: "2.1",
			EventSource:  "credshare",
			Region:       e.region,
			EventTime:    time.Now().UTC(),
			EventName:    string(eventType),
			RequestParameters: RequestParameters{
				SourceIPAddress: info.RemoteIP,
				UserAgent:       info.UserAgent,
			},
			ResponseElements: ResponseElements{RequestID: info.RequestID},
			Object:           entity,
		}},
	}
}

// Start launches the dispatcher.
func (e *Emitter) Start(ctx context.Context) {
	if !e.enabled || !e.started.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(1)
	go e.dispatch(ctx)

	names := make([]string, len(e.publishers))
	for i, p := range e.publishers {
		names[i] = p.Name()
	}
	logger.Info().Strs("publishers", names).Msg("event emitter started")
}

// Stop delivers what is queued, then closes every publisher.
func (e *Emitter) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		e.stopped.Store(true)
		close(e.done)
		e.wg.Wait()
		if !e.started.Load() {
			e.drain()
		}
		for _, p := range e.publishers {
			err = errors.Join(err, p.Close())
		}
	})
	return err
}

func (e *Emitter) dispatch(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			e.drain()
			return
		case <-e.done:
			e.drain()
			return
		case d := <-e.queue:
			e.deliver(ctx, d)
		}
	}
}

func (e *Emitter) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for {
		select {
		case d := <-e.queue:
			e.deliver(ctx, d)
		default:
			return
		}
	}
}

func (e *Emitter) deliver(ctx context.Context, d delivery) {
	EventsQueueDepth.Dec()
	for _, p := range e.publishers {
		pctx, cancel := context.WithTimeout(ctx, e.timeout)
		start := time.Now()
		err := p.Publish(pctx, d.name, d.key, d.data)
		cancel()
		if err != nil {
			EventsDeliveryErrorsTotal.WithLabelValues(p.Name()).Inc()
			logger.Warn().Err(err).
				Str("publisher", p.Name()).
				Str("event", string(d.name)).
				Str("key", d.key).
				Msg("event delivery failed")
			continue
		}
		EventsDeliveredTotal.WithLabelValues(p.Name()).Inc()
		EventsDeliveryDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	}
}

// nextSequencer generates a unique, monotonically increasing sequencer value.
// Format: hex(timestamp_ms) + hex(counter) + random_suffix
func (e *Emitter) nextSequencer() string {
	ts := time.Now().UnixMilli()
	seq := e.sequencer.Add(1)

	suffix := make([]byte, 4)
	rand.Read(suffix)

	return hex.EncodeToString([]byte{
		byte(ts >> 40), byte(ts >> 32), byte(ts >> 24), byte(ts >> 16),
		byte(ts >> 8), byte(ts),
		byte(seq >> 8), byte(seq),
	}) + hex.EncodeToString(suffix)
}

// NewPublishers connects every publisher enabled in cfg. On error the
// publishers opened so far are closed.
func NewPublishers(cfg Config) ([]Publisher, error) {
	cfg.Validate()

	var pubs []Publisher
	fail := func(err error) ([]Publisher, error) {
		for _, p := range pubs {
			p.Close()
		}
		return nil, err
	}

	if cfg.Redis.Enabled {
		p, err := NewRedisPublisher(cfg.Redis)
		if err != nil {
			return fail(err)
		}
		pubs = append(pubs, p)
	}
	if cfg.Kafka.Enabled {
		p, err := NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return fail(err)
		}
		pubs = append(pubs, p)
	}
	if cfg.NATS.Enabled {
		p, err := NewNATSPublisher(cfg.NATS)
		if err != nil {
			return fail(err)
		}
		pubs = append(pubs, p)
	}
	return pubs, nil
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/internaltools/credshare/pkg/utils"
	"github.com/rs/zerolog/log"
)

const shutdownFlushTimeout = 10 * time.Second

// ErrCollectorStopped is returned by Flush after Stop.
var ErrCollectorStopped = errors.New("audit collector stopped")

// Collector buffers entries and writes them to a Store in batches from a
// single goroutine. Entries reach the store in the order Record accepted them.
type Collector struct {
	store   Store
	cfg     Config
	buffer  chan Entry
	flushCh chan chan error
	done    chan struct{}
	exited  chan struct{}
	wg      sync.WaitGroup
	metrics *Metrics

	seq      atomic.Uint64
	recordMu sync.Mutex
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

// NewCollector creates a collector writing to store.
func NewCollector(cfg Config, store Store) *Collector {
	cfg.Validate()
	return &Collector{
		store:   store,
		cfg:     cfg,
		buffer:  make(chan Entry, cfg.BufferSize),
		flushCh: make(chan chan error),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		metrics: NewMetrics(),
	}
}

// Record enqueues e without blocking. A full buffer drops the entry.
func (c *Collector) Record(e Entry) {
	if c.stopped.Load() {
		c.dropped(e, "audit collector stopped, entry dropped")
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	// Seq assignment and enqueue happen together so seq order matches
	// channel order.
	c.recordMu.Lock()
	e.Seq = c.seq.Add(1)
	select {
	case c.buffer <- e:
		c.recordMu.Unlock()
		c.metrics.EventsRecorded.WithLabelValues(string(e.Event)).Inc()
	default:
		c.recordMu.Unlock()
		c.dropped(e, "audit buffer full, entry dropped")
	}
}

func (c *Collector) dropped(e Entry, msg string) {
	c.metrics.EventsDropped.Inc()
	log.Warn().
		Str("event", string(e.Event)).
		Str("key", e.ObjectKey).
		Msg(msg)
}

// Start begins background flushing. It must be called at most once.
func (c *Collector) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go c.flushLoop(ctx)
	log.Info().
		Int("batch_size", c.cfg.BatchSize).
		Dur("flush_interval", c.cfg.FlushInterval).
		Msg("audit collector started")
}

// Stop flushes pending entries and waits for the flush goroutine to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.done)
		c.wg.Wait()
		if !c.started.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
			defer cancel()
			c.flush(ctx, c.drain())
		}
		log.Info().Msg("audit collector stopped")
	})
}

// Flush writes everything recorded so far and returns the store error, if
// any. When the loop is running the request goes through it so ordering with
// in-flight batches is kept.
func (c *Collector) Flush(ctx context.Context) error {
	if !c.started.Load() {
		if c.stopped.Load() {
			return ErrCollectorStopped
		}
		return c.flush(ctx, c.drain())
	}

	reply := make(chan error, 1)
	select {
	case c.flushCh <- reply:
	case <-c.exited:
		return ErrCollectorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) flushLoop(ctx context.Context) {
	defer c.wg.Done()
	defer close(c.exited)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, c.cfg.BatchSize)
	send := func(ctx context.Context) error {
		err := c.flush(ctx, batch)
		batch = make([]Entry, 0, c.cfg.BatchSize)
		return err
	}
	final := func() {
		batch = append(batch, c.drain()...)
		fctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		send(fctx)
	}

	for {
		select {
		case <-ctx.Done():
			final()
			return

		case <-c.done:
			final()
			return

		case e := <-c.buffer:
			batch = append(batch, e)
			if len(batch) >= c.cfg.BatchSize {
				send(ctx)
			}

		case reply := <-c.flushCh:
			batch = append(batch, c.drain()...)
			reply <- send(ctx)

		case <-ticker.C:
			if len(batch) > 0 {
				send(ctx)
			}
		}
	}
}

// drain empties the buffer without blocking.
func (c *Collector) drain() []Entry {
	var entries []Entry
	for {
		select {
		case e := <-c.buffer:
			entries = append(entries, e)
		default:
			return entries
		}
	}
}

// flush writes batch, retrying with backoff. After MaxRetries failed retries
// the batch is dropped and the last error returned.
func (c *Collector) flush(ctx context.Context, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.FlushRetries.Inc()
			if !utils.SleepContext(ctx, utils.Backoff(attempt-1, c.cfg.RetryBaseDelay, c.cfg.RetryMaxDelay)) {
				err = errors.Join(err, ctx.Err())
				break
			}
		}

		start := time.Now()
		err = c.store.Insert(ctx, batch)
		duration := time.Since(start)
		if err == nil {
			c.metrics.EventsFlushed.Add(float64(len(batch)))
			c.metrics.FlushDuration.Observe(duration.Seconds())
			log.Debug().
				Int("count", len(batch)).
				Dur("duration", duration).
				Msg("flushed audit entries")
			return nil
		}

		log.Warn().Err(err).
			Int("count", len(batch)).
			Int("attempt", attempt+1).
			Msg("audit flush failed")
	}

	c.metrics.FlushErrors.Inc()
	c.metrics.EventsDropped.Add(float64(len(batch)))
	log.Error().Err(err).
		Int("count", len(batch)).
		Msg("dropping audit batch after retries")
	return err
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle runs the background purges: expired objects and stale
// multipart uploads on one timer, expired audit entries on another. Neither
// timer blocks a client request and a failed run is retried on the next tick.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/utils"
)

const (
	DefaultObjectInterval = 5 * time.Minute
	DefaultLogInterval    = time.Hour
	DefaultJitter         = 0.1
	DefaultRunTimeout     = 10 * time.Minute
)

// ObjectSweeper purges expired objects and stale uploads.
type ObjectSweeper interface {
	SweepExpired(ctx context.Context) (objstore.SweepResult, error)
}

// LogSweeper purges audit entries past their retention.
type LogSweeper interface {
	SweepExpiredLogs(ctx context.Context) (int, error)
}

// Config holds the sweep schedule
type Config struct {
	ObjectInterval time.Duration `mapstructure:"object_interval"`
	LogInterval    time.Duration `mapstructure:"log_interval"`

	// Jitter is the fraction each interval varies by. Negative disables it.
	Jitter float64 `mapstructure:"jitter"`

	// RunTimeout bounds a single run.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

func DefaultConfig() Config {
	cfg := Config{}
	cfg.Validate()
	return cfg
}

// Validate fills zero values with defaults.
func (c *Config) Validate() {
	if c.ObjectInterval <= 0 {
		c.ObjectInterval = DefaultObjectInterval
	}
	if c.LogInterval <= 0 {
		c.LogInterval = DefaultLogInterval
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	} else if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
}

// Result is the outcome of RunOnce.
type Result struct {
	Objects int `json:"objects"`
	Uploads int `json:"uploads"`
	Logs    int `json:"logs"`
}

// Sweeper drives the object and log sweeps on independent timers.
type Sweeper struct {
	cfg     Config
	objects ObjectSweeper
	logs    LogSweeper

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper. Either sweeper may be nil to disable its timer.
func NewSweeper(cfg Config, objects ObjectSweeper, logs LogSweeper) *Sweeper {
	cfg.Validate()
	return &Sweeper{
		cfg:     cfg,
		objects: objects,
		logs:    logs,
	}
}

// Start launches both timers. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	if s.objects != nil {
		s.wg.Go(func() {
			utils.RunJittered(ctx, s.cfg.ObjectInterval, s.cfg.Jitter, func(ctx context.Context) {
				_, _ = s.SweepObjects(ctx)
			})
		})
	}
	if s.logs != nil {
		s.wg.Go(func() {
			utils.RunJittered(ctx, s.cfg.LogInterval, s.cfg.Jitter, func(ctx context.Context) {
				_, _ = s.SweepLogs(ctx)
			})
		})
	}

	logger.Info().
		Dur("object_interval", s.cfg.ObjectInterval).
		Dur("log_interval", s.cfg.LogInterval).
		Msg("lifecycle sweeper started")
}

// Stop cancels both timers and waits for an in-flight run to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// SweepObjects runs one object sweep.
func (s *Sweeper) SweepObjects(ctx context.Context) (objstore.SweepResult, error) {
	if s.objects == nil {
		return objstore.SweepResult{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.objects.SweepExpired(ctx)
	s.observe("objects", start, err)
	sweepPurgedTotal.WithLabelValues("objects").Add(float64(res.Objects))
	sweepPurgedTotal.WithLabelValues("uploads").Add(float64(res.Uploads))

	if err != nil {
		logger.Warn().Err(err).
			Int("objects", res.Objects).
			Int("uploads", res.Uploads).
			Msg("object sweep failed, retrying next tick")
	}
	return res, err
}

// SweepLogs runs one audit log sweep.
func (s *Sweeper) SweepLogs(ctx context.Context) (int, error) {
	if s.logs == nil {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.logs.SweepExpiredLogs(ctx)
	s.observe("logs", start, err)
	sweepPurgedTotal.WithLabelValues("logs").Add(float64(n))

	if err != nil {
		logger.Warn().Err(err).Int("purged", n).Msg("log sweep failed, retrying next tick")
	} else if n > 0 {
		logger.Info().Int("purged", n).Msg("expired audit entries purged")
	}
	return n, err
}

// RunOnce runs both sweeps now, regardless of the timers.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	objs, objErr := s.SweepObjects(ctx)
	logs, logErr := s.SweepLogs(ctx)
	return Result{
		Objects: objs.Objects,
		Uploads: objs.Uploads,
		Logs:    logs,
	}, errors.Join(objErr, logErr)
}

func (s *Sweeper) observe(job string, start time.Time, err error) {
	sweepRunsTotal.WithLabelValues(job).Inc()
	sweepDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		sweepErrorsTotal.WithLabelValues(job).Inc()
		return
	}
	sweepLastSuccess.WithLabelValues(job).Set(float64(time.Now().Unix()))
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"time"
)

// Store drivers.
const (
	StoreMemory     = "memory"
	StoreClickHouse = "clickhouse"
)

const (
	DefaultRetention      = 30 * 24 * time.Hour
	DefaultBatchSize      = 500
	DefaultFlushInterval  = time.Second
	DefaultMaxRetries     = 5
	DefaultRetryBaseDelay = 50 * time.Millisecond
	DefaultRetryMaxDelay  = 5 * time.Second
	DefaultExportInterval = time.Hour
	DefaultExportBatch    = 10000
	DefaultExportPrefix   = "access-logs/"
)

// Config holds audit log configuration.
type Config struct {
	// Bucket names the object namespace in exported log lines.
	Bucket string `mapstructure:"bucket"`

	// Retention is how long entries are kept before SweepExpiredLogs removes them.
	Retention time.Duration `mapstructure:"retention"`

	// Collector settings
	BatchSize      int           `mapstructure:"batch_size"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`

	// Store selects "memory" or "clickhouse".
	Store        string        `mapstructure:"store"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`

	// Export settings
	ExportEnabled  bool          `mapstructure:"export_enabled"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
	ExportBatch    int           `mapstructure:"export_batch"`
	ExportPrefix   string        `mapstructure:"export_prefix"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.Validate()
	return cfg
}

// Validate fills zero values with defaults.
func (c *Config) Validate() {
	if c.Bucket == "" {
		c.Bucket = "credshare"
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = c.BatchSize * 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = DefaultExportInterval
	}
	if c.ExportBatch <= 0 {
		c.ExportBatch = DefaultExportBatch
	}
	if c.ExportPrefix == "" {
		c.ExportPrefix = DefaultExportPrefix
	}
}

// OpenStore builds the store selected by cfg.Store.
func OpenStore(cfg Config) (Store, error) {
	switch cfg.Store {
	case StoreMemory, "":
		return NewMemoryStore(), nil
	case StoreClickHouse:
		return NewClickHouseStore(cfg)
	default:
		return nil, fmt.Errorf("unknown audit store %q", cfg.Store)
	}
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import "time"

const (
	DefaultRetention     = 24 * time.Hour
	DefaultUploadGrace   = time.Hour
	DefaultMaxObjectSize = 100 << 20 // 100 MiB
	DefaultMinPartSize   = 5 << 20   // 5 MiB
	DefaultSweepBatch    = 1000
)

// Config controls object lifetime and size limits.
type Config struct {
	// Retention is the fixed lifetime of every object, counted from upload.
	Retention time.Duration `mapstructure:"retention"`

	// UploadGrace is how long an incomplete multipart upload may live before
	// the sweep aborts it.
	UploadGrace time.Duration `mapstructure:"upload_grace"`

	// AllowOverwrite lets a put replace an unexpired object under the same
	// key. When false such a put fails with ErrConflict.
	AllowOverwrite bool `mapstructure:"allow_overwrite"`

	MaxObjectSize int64 `mapstructure:"max_object_size"`

	// MinPartSize applies to every part of a completed upload except the last.
	MinPartSize int64 `mapstructure:"min_part_size"`

	// SweepBatch bounds how many records one metadata query returns during a sweep.
	SweepBatch int `mapstructure:"sweep_batch"`
}

// DefaultConfig returns the reference policy: 24h retention, 1h upload
// grace, overwrite allowed.
func DefaultConfig() Config {
	return Config{
		Retention:      DefaultRetention,
		UploadGrace:    DefaultUploadGrace,
		AllowOverwrite: true,
		MaxObjectSize:  DefaultMaxObjectSize,
		MinPartSize:    DefaultMinPartSize,
		SweepBatch:     DefaultSweepBatch,
	}
}

// Validate fills zero durations and limits with defaults. AllowOverwrite is
// left as given.
func (c *Config) Validate() {
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	if c.UploadGrace <= 0 {
		c.UploadGrace = DefaultUploadGrace
	}
	if c.MaxObjectSize <= 0 {
		c.MaxObjectSize = DefaultMaxObjectSize
	}
	if c.MinPartSize < 0 {
		c.MinPartSize = 0
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = DefaultSweepBatch
	}
}

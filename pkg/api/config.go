// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import "time"

const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxUploadSize   = 5 << 20 // 5 MiB, for POST /upload
	DefaultRateLimit       = 20      // requests per second per client
	DefaultRateBurst       = 40
	DefaultCORSMaxAge      = 3000 // seconds
)

// DefaultAllowedExtensions are the file types accepted by POST /upload.
var DefaultAllowedExtensions = []string{
	".env", ".txt", ".text", ".log", ".json", ".yaml", ".yml", ".conf", ".config",
}

// Config controls the HTTP front end.
type Config struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`

	// PublicURL prefixes the fileUrl returned by POST /upload.
	PublicURL string `mapstructure:"public_url"`

	MaxUploadSize     int64    `mapstructure:"max_upload_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`

	// RateLimit is the sustained request rate per client IP. Negative disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	CORSOrigins []string `mapstructure:"cors_origins"`
	CORSMaxAge  int      `mapstructure:"cors_max_age"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `mapstructure:"trust_proxy"`

	// AccessLog writes a combined log line per request to stdout.
	AccessLog bool `mapstructure:"access_log"`
}

func DefaultConfig() Config {
	cfg := Config{}
	cfg.Validate()
	return cfg
}

// Validate fills zero values with defaults.
func (c *Config) Validate() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = DefaultMaxUploadSize
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = DefaultAllowedExtensions
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateBurst <= 0 {
		c.RateBurst = DefaultRateBurst
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.CORSMaxAge <= 0 {
		c.CORSMaxAge = DefaultCORSMaxAge
	}
}

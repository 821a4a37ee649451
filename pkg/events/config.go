// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package events publishes object lifecycle notifications (created,
// accessed, removed, expired) to external brokers.
//
// Notifications are best effort: they are queued in memory and delivered
// by a background dispatcher to every configured publisher (Redis, Kafka,
// NATS). A slow or failed broker never blocks an object operation.
package events

import (
	"time"
)

// Config holds event notification configuration.
type Config struct {
	// Enabled controls whether event emission is active.
	// When false, Emitter.Emit() is a no-op.
	Enabled bool `mapstructure:"enabled"`

	// Region is stamped on every notification.
	Region string `mapstructure:"region"`

	// BufferSize bounds the in-memory delivery queue (default: 1024).
	BufferSize int `mapstructure:"buffer_size"`

	// PublishTimeout bounds a single delivery to one publisher (default: 5s).
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`

	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

// RedisConfig holds Redis publisher settings.
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Channel is the channel prefix. Events are published to
	// "{channel}:{event name}" (default: "credshare:events").
	Channel string `mapstructure:"channel"`

	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Enabled bool `mapstructure:"enabled"`

	Brokers []string `mapstructure:"brokers"`

	// Topic is the Kafka topic for events (default: "credshare-events").
	Topic string `mapstructure:"topic"`

	// RequiredAcks: 0=none, 1=leader, -1=all (default: 1).
	RequiredAcks int `mapstructure:"required_acks"`

	// Compression: "none", "gzip", "snappy", "lz4", "zstd" (default: "snappy").
	Compression string `mapstructure:"compression"`

	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	TLS           bool `mapstructure:"tls"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	// SASLMechanism is PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512. Empty disables SASL.
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

// NATSConfig holds NATS publisher settings.
type NATSConfig struct {
	Enabled bool `mapstructure:"enabled"`

	URL string `mapstructure:"url"`

	// Subject is the subject prefix. Events are published to
	// "{subject}.{event name}" (default: "credshare.events").
	Subject string `mapstructure:"subject"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.Validate()
	return cfg
}

// Validate applies defaults for zero or invalid values.
func (c *Config) Validate() {
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "credshare:events"
	}
	if c.Redis.PoolSize <= 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.DialTimeout <= 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout <= 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout <= 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// Kafka defaults
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "credshare-events"
	}
	if c.Kafka.RequiredAcks < -1 || c.Kafka.RequiredAcks > 1 {
		c.Kafka.RequiredAcks = 1
	}
	if c.Kafka.Compression == "" {
		c.Kafka.Compression = "snappy"
	}
	if c.Kafka.BatchSize <= 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout <= 0 {
		c.Kafka.BatchTimeout = time.Second
	}
	if c.Kafka.WriteTimeout <= 0 {
		c.Kafka.WriteTimeout = 10 * time.Second
	}

	// NATS defaults
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "credshare.events"
	}
	if c.NATS.ConnectTimeout <= 0 {
		c.NATS.ConnectTimeout = 2 * time.Second
	}
}

// HasPublishers returns true if at least one publisher is enabled.
func (c *Config) HasPublishers() bool {
	return c.Redis.Enabled || c.Kafka.Enabled || c.NATS.Enabled
}

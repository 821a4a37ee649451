// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.HasPublishers())
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "credshare:events", cfg.Redis.Channel)
	assert.Equal(t, 10, cfg.Redis.PoolSize)

	assert.Equal(t, "credshare-events", cfg.Kafka.Topic)
	assert.Equal(t, 1, cfg.Kafka.RequiredAcks)
	assert.Equal(t, "snappy", cfg.Kafka.Compression)
	assert.Equal(t, 100, cfg.Kafka.BatchSize)
	assert.Equal(t, time.Second, cfg.Kafka.BatchTimeout)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "credshare.events", cfg.NATS.Subject)
}

func TestConfigValidate_FixesInvalid(t *testing.T) {
	t.Parallel()

	cfg := Config{Kafka: KafkaConfig{RequiredAcks: 5}, NATS: NATSConfig{Enabled: true}}
	cfg.Validate()
	assert.Equal(t, 1, cfg.Kafka.RequiredAcks)
	assert.True(t, cfg.HasPublishers())
}

func TestMatchesEventType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		name    EventType
		want    bool
	}{
		{"credshare:ObjectCreated:*", EventObjectCreatedPut, true},
		{"credshare:ObjectCreated:*", EventObjectCreatedCompleteUpload, true},
		{"credshare:ObjectCreated:*", EventObjectRemovedDelete, false},
		{string(EventObjectAccessedGet), EventObjectAccessedGet, true},
		{"credshare:LifecycleExpiration:Delete", EventLifecycleAbortUpload, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesEventType(tt.pattern, string(tt.name)), "%s vs %s", tt.pattern, tt.name)
	}
}

func TestEventTypeShort(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ObjectCreated.Put", EventObjectCreatedPut.Short())
}

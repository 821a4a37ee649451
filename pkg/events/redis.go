// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/internaltools/credshare/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events to Redis Pub/Sub.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects and pings Redis.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "credshare:events"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info().
		Str("addr", cfg.Addr).
		Str("channel", cfg.Channel).
		Msg("redis event publisher connected")

	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

func (p *RedisPublisher) Name() string {
	return "redis"
}

// Channel returns the channel an event type is published on.
func (p *RedisPublisher) Channel(eventName EventType) string {
	return fmt.Sprintf("%s:%s", p.channel, eventName.Short())
}

func (p *RedisPublisher) Publish(ctx context.Context, eventName EventType, key string, data []byte) error {
	channel := p.Channel(eventName)

	result := p.client.Publish(ctx, channel, data)
	if err := result.Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}

	logger.Debug().
		Str("channel", channel).
		Str("key", key).
		Int64("subscribers", result.Val()).
		Msg("published event to redis")
	return nil
}

func (p *RedisPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

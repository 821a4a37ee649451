// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisPublisher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRedisPublisher(RedisConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis address is required")

	_, err = NewRedisPublisher(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestRedisPublisher_Channel(t *testing.T) {
	t.Parallel()

	p := &RedisPublisher{channel: "credshare:events"}
	assert.Equal(t, "redis", p.Name())
	assert.Equal(t, "credshare:events:ObjectCreated.Put", p.Channel(EventObjectCreatedPut))
	assert.Equal(t, "credshare:events:LifecycleExpiration.Delete", p.Channel(EventLifecycleExpirationDelete))
}

func TestRedisPublisher_Publish(t *testing.T) {
	t.Parallel()

	s := miniredis.RunT(t)
	pub, err := NewRedisPublisher(RedisConfig{Addr: s.Addr(), Channel: "test", DialTimeout: time.Second})
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "test:ObjectRemoved.Delete")
	defer ps.Close()
	_, err = ps.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, EventObjectRemovedDelete, "k", []byte(`{"x":1}`)))

	select {
	case msg := <-ps.Channel():
		assert.Equal(t, "test:ObjectRemoved.Delete", msg.Channel)
		assert.Equal(t, `{"x":1}`, msg.Payload)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestRedisPublisher_PublishAfterServerGone(t *testing.T) {
	t.Parallel()

	s := miniredis.RunT(t)
	pub, err := NewRedisPublisher(RedisConfig{Addr: s.Addr(), DialTimeout: time.Second})
	require.NoError(t, err)
	defer pub.Close()

	s.Close()
	err = pub.Publish(context.Background(), EventObjectCreatedPut, "k", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis publish")
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/internaltools/credshare/pkg/types"
)

func init() {
	Register(types.StorageTypeRedis, NewRedis)
}

// Redis implements BackendStorage on a Redis server. Blobs carry a native
// expiry (ExpireAt), so payloads disappear at their deadline even if no
// sweep ever runs.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis backend. Endpoint is host:port; Options may set
// "password" and "db".
func NewRedis(cfg types.BackendConfig) (types.BackendStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint required for redis backend")
	}
	db := 0
	if v := cfg.Options["db"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q: %w", v, err)
		}
		db = n
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Endpoint,
		Password: cfg.Options["password"],
		DB:       db,
	})
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "credshare:blob:"
	}
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Type() types.StorageType {
	return types.StorageTypeRedis
}

func (r *Redis) Write(ctx context.Context, key string, data io.Reader, size int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, buf, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// ExpireAt sets a native deadline on the blob.
func (r *Redis) ExpireAt(ctx context.Context, key string, at time.Time) error {
	if err := r.client.PExpireAt(ctx, r.prefix+key, at).Err(); err != nil {
		return fmt.Errorf("redis pexpireat: %w", err)
	}
	return nil
}

// List scans the keyspace for keys under prefix.
func (r *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"io"
	"time"
)

// StorageType identifies the backend storage implementation
type StorageType string

const (
	StorageTypeMemory StorageType = "memory" // In-process, for tests and local runs
	StorageTypeLocal  StorageType = "local"  // Local filesystem
	StorageTypeS3     StorageType = "s3"     // S3-compatible
	StorageTypeRedis  StorageType = "redis"  // Redis with native key expiry
)

// BackendStorage is the interface for reading/writing payload blobs.
// Implementations: MemoryStorage, Local, S3, Redis.
type BackendStorage interface {
	// Type returns the storage type
	Type() StorageType

	// Write stores data under key. size may be -1 when unknown.
	Write(ctx context.Context, key string, data io.Reader, size int64) error

	// Read reads data from the backend
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes data from the backend. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources
	Close() error
}

// Expirer is implemented by backends that can drop a blob on their own at
// a deadline, so a crashed process still cannot leak payloads past expiry.
type Expirer interface {
	ExpireAt(ctx context.Context, key string, at time.Time) error
}

// Lister is implemented by backends that can enumerate keys under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// BackendConfig contains configuration for creating a backend storage instance
type BackendConfig struct {
	Type      StorageType       `json:"type" mapstructure:"type"`
	Endpoint  string            `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Bucket    string            `json:"bucket,omitempty" mapstructure:"bucket"`
	Prefix    string            `json:"prefix,omitempty" mapstructure:"prefix"`
	Path      string            `json:"path,omitempty" mapstructure:"path"`
	Region    string            `json:"region,omitempty" mapstructure:"region"`
	AccessKey string            `json:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string            `json:"secret_key,omitempty" mapstructure:"secret_key"`
	Options   map[string]string `json:"options,omitempty" mapstructure:"options"`
}

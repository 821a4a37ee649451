// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// ObjectMeta is the metadata record for a stored object. The payload itself
// lives in a BackendStorage under BlobID.
type ObjectMeta struct {
	Key         string            `json:"key"`
	BlobID      string            `json:"blob_id"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type,omitempty"`
	ETag        string            `json:"etag"` // hex sha256 of the payload
	CreatedAt   int64             `json:"created_at"` // Unix nano timestamp
	ExpiresAt   int64             `json:"expires_at"` // Unix nano timestamp
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Created returns CreatedAt as a time.Time.
func (o *ObjectMeta) Created() time.Time {
	return time.Unix(0, o.CreatedAt)
}

// Expires returns ExpiresAt as a time.Time.
func (o *ObjectMeta) Expires() time.Time {
	return time.Unix(0, o.ExpiresAt)
}

// IsExpired reports whether the object must no longer be served at now.
// An object is expired from the instant ExpiresAt is reached.
func (o *ObjectMeta) IsExpired(now time.Time) bool {
	return now.UnixNano() >= o.ExpiresAt
}

// Clone returns a deep copy so callers cannot mutate shared metadata maps.
func (o *ObjectMeta) Clone() *ObjectMeta {
	if o == nil {
		return nil
	}
	c := *o
	if o.Metadata != nil {
		c.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

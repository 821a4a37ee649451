// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNATSPublisher_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewNATSPublisher(NATSConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats url is required")

	_, err = NewNATSPublisher(NATSConfig{URL: "nats://127.0.0.1:1", ConnectTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats connect")
}

func TestNATSPublisher_Subject(t *testing.T) {
	t.Parallel()

	p := &NATSPublisher{subject: "credshare.events"}
	assert.Equal(t, "nats", p.Name())
	assert.Equal(t, "credshare.events.ObjectAccessed.Get", p.Subject(EventObjectAccessedGet))
	assert.Equal(t, "credshare.events.LifecycleExpiration.AbortIncompleteMultipartUpload", p.Subject(EventLifecycleAbortUpload))
}

func TestNATSPublisher_NotConnected(t *testing.T) {
	t.Parallel()

	var p *NATSPublisher
	assert.ErrorIs(t, p.Publish(context.Background(), EventObjectCreatedPut, "k", nil), errNATSClosed)
	assert.NoError(t, (&NATSPublisher{}).Close())
}

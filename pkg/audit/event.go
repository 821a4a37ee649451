// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"time"
)

// EventType identifies what happened to an object.
type EventType string

const (
	EventUpload EventType = "UPLOAD"
	EventAccess EventType = "ACCESS"
	EventDelete EventType = "DELETE"

	// EventExpire and EventAbort are recorded by the sweep so the trail
	// explains objects and uploads that vanished without a client DELETE.
	EventExpire EventType = "EXPIRE"
	EventAbort  EventType = "ABORT"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventUpload, EventAccess, EventDelete, EventExpire, EventAbort:
		return true
	}
	return false
}

// Operation returns the access-log operation name for the event.
func (t EventType) Operation() string {
	switch t {
	case EventUpload:
		return "REST.PUT.OBJECT"
	case EventAccess:
		return "REST.GET.OBJECT"
	case EventDelete:
		return "REST.DELETE.OBJECT"
	case EventExpire:
		return "LIFECYCLE.EXPIRE.OBJECT"
	case EventAbort:
		return "LIFECYCLE.ABORT.UPLOAD"
	}
	return "UNKNOWN"
}

// Entry is a single audit record. ObjectKey is a weak reference: the object
// may be long gone while its entries are still retained.
type Entry struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Event     EventType `json:"event"`
	ObjectKey string    `json:"objectKey"`
	RequestID string    `json:"requestId,omitempty"`
	RemoteIP  string    `json:"remoteIp,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Size      int64     `json:"size,omitempty"`
}

// before orders entries by time, then by sequence number.
func (e Entry) before(o Entry) bool {
	if !e.Time.Equal(o.Time) {
		return e.Time.Before(o.Time)
	}
	return e.Seq < o.Seq
}

// RequestInfo carries the client side of a request into Record calls made
// deep inside the object store.
type RequestInfo struct {
	RequestID string
	RemoteIP  string
	UserAgent string
}

type requestInfoKey struct{}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// NewEntry builds an entry for event on key, filling request fields from ctx.
func NewEntry(ctx context.Context, event EventType, key string, size int64) Entry {
	info := RequestInfoFrom(ctx)
	return Entry{
		Event:     event,
		ObjectKey: key,
		RequestID: info.RequestID,
		RemoteIP:  info.RemoteIP,
		UserAgent: info.UserAgent,
		Size:      size,
	}
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"strings"
	"time"
)

// Notification is the JSON document delivered to publishers. It follows the
// S3 event notification layout so existing consumers can parse it.
type Notification struct {
	Records []Record `json:"Records"`
}

// Record is a single event within a notification.
type Record struct {
	EventVersion string    `json:"eventVersion"`
	EventSource  string    `json:"eventSource"`
	Region       string    `json:"awsRegion,omitempty"`
	EventTime    time.Time `json:"eventTime"`
	EventName    string    `json:"eventName"`

	RequestParameters RequestParameters `json:"requestParameters"`
	ResponseElements  ResponseElements  `json:"responseElements"`
	Object            ObjectEntity      `json:"object"`
}

type RequestParameters struct {
	SourceIPAddress string `json:"sourceIPAddress,omitempty"`
	UserAgent       string `json:"userAgent,omitempty"`
}

type ResponseElements struct {
	RequestID string `json:"x-request-id,omitempty"`
}

// ObjectEntity describes the object the event is about.
type ObjectEntity struct {
	Key       string     `json:"key"`
	Size      int64      `json:"size,omitempty"`
	ETag      string     `json:"eTag,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Sequencer string     `json:"sequencer"`
}

// EventType names a notification.
type EventType string

const (
	EventObjectCreatedPut            EventType = "credshare:ObjectCreated:Put"
	EventObjectCreatedPost           EventType = "credshare:ObjectCreated:Post"
	EventObjectCreatedCompleteUpload EventType = "credshare:ObjectCreated:CompleteMultipartUpload"
	EventObjectAccessedGet           EventType = "credshare:ObjectAccessed:Get"
	EventObjectRemovedDelete         EventType = "credshare:ObjectRemoved:Delete"
	EventLifecycleExpirationDelete   EventType = "credshare:LifecycleExpiration:Delete"
	EventLifecycleAbortUpload        EventType = "credshare:LifecycleExpiration:AbortIncompleteMultipartUpload"
)

// Short returns the event name without the source prefix, with ':' replaced
// by '.', for use in channel and subject names.
func (t EventType) Short() string {
	s := strings.TrimPrefix(string(t), "credshare:")
	return strings.ReplaceAll(s, ":", ".")
}

// Object is what callers pass to Emit.
type Object struct {
	Key       string
	Size      int64
	ETag      string
	ExpiresAt time.Time
}

// MatchesEventType reports whether eventName matches pattern, where a
// trailing '*' matches any suffix.
func MatchesEventType(pattern, eventName string) bool {
	if pattern == eventName {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(eventName, prefix)
	}
	return false
}

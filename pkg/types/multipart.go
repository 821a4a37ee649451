// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// MaxPartNumber is the highest part number a multipart upload accepts.
const MaxPartNumber = 10000

// MultipartUpload represents an in-progress multipart upload
type MultipartUpload struct {
	UploadID  string `json:"upload_id"`
	Key       string `json:"key"`
	Initiated int64  `json:"initiated"` // Unix nano timestamp

	// Metadata from the initiate request
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitiatedTime returns Initiated as a time.Time.
func (u *MultipartUpload) InitiatedTime() time.Time {
	return time.Unix(0, u.Initiated)
}

// IsStale reports whether the upload has outlived its grace period at now.
func (u *MultipartUpload) IsStale(now time.Time, grace time.Duration) bool {
	return !now.Before(u.InitiatedTime().Add(grace))
}

// MultipartPart represents a single part of a multipart upload
type MultipartPart struct {
	UploadID     string `json:"upload_id"`
	PartNumber   int    `json:"part_number"`
	BlobID       string `json:"blob_id"`
	Size         int64  `json:"size"`
	ETag         string `json:"etag"`      // hex sha256 of the part
	Checksum     string `json:"checksum"`  // base64 CRC64/NVME of the part
	LastModified int64  `json:"last_modified"` // Unix nano timestamp
}

// CompletedPart is one entry of a CompleteMultipartUpload request.
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

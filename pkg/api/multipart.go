// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/types"
)

// maxCompleteBodySize bounds the JSON part list of a complete request.
const maxCompleteBodySize = 1 << 20

type uploadResponse struct {
	Key       string    `json:"key"`
	UploadID  string    `json:"uploadId"`
	Initiated time.Time `json:"initiated"`
}

type partResponse struct {
	PartNumber   int       `json:"partNumber"`
	ETag         string    `json:"etag"`
	Checksum     string    `json:"checksumCrc64nvme"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

func newPartResponse(p *types.MultipartPart) partResponse {
	return partResponse{
		PartNumber:   p.PartNumber,
		ETag:         p.ETag,
		Checksum:     p.Checksum,
		Size:         p.Size,
		LastModified: time.Unix(0, p.LastModified).UTC(),
	}
}

type completeRequest struct {
	Parts []types.CompletedPart `json:"parts"`
}

func (h *Handler) createUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := h.store.CreateMultipartUpload(r.Context(), objectKey(r), objstore.PutOptions{
		ContentType: r.Header.Get("Content-Type"),
		Metadata:    userMetadata(r.Header),
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Key:       upload.Key,
		UploadID:  upload.UploadID,
		Initiated: upload.InitiatedTime().UTC(),
	})
}

func (h *Handler) uploadPart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partNumber, err := strconv.Atoi(q.Get("partNumber"))
	if err != nil {
		writeError(w, r, apierr.ErrInvalidPartNumber, "")
		return
	}
	part, err := h.store.UploadPart(r.Context(), objectKey(r), q.Get("uploadId"), partNumber, r.Body, r.ContentLength)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.Header().Set("ETag", `"`+part.ETag+`"`)
	writeJSON(w, http.StatusOK, newPartResponse(part))
}

func (h *Handler) completeUpload(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCompleteBodySize)).Decode(&req); err != nil {
		writeError(w, r, apierr.ErrMalformedJSON, "")
		return
	}
	meta, err := h.store.CompleteMultipartUpload(r.Context(), objectKey(r), r.URL.Query().Get("uploadId"), req.Parts)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	setObjectHeaders(w, meta)
	writeJSON(w, http.StatusOK, newObjectResponse(meta))
}

func (h *Handler) abortUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.store.AbortMultipartUpload(r.Context(), objectKey(r), r.URL.Query().Get("uploadId")); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listParts(w http.ResponseWriter, r *http.Request) {
	uploadID := r.URL.Query().Get("uploadId")
	parts, err := h.store.ListParts(r.Context(), objectKey(r), uploadID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	out := make([]partResponse, 0, len(parts))
	for _, p := range parts {
		out = append(out, newPartResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":      objectKey(r),
		"uploadId": uploadID,
		"parts":    out,
	})
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/types"
)

// objectResponse is the JSON body of a successful write.
type objectResponse struct {
	Key         string    `json:"key"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func newObjectResponse(meta *types.ObjectMeta) objectResponse {
	return objectResponse{
		Key:         meta.Key,
		ETag:        meta.ETag,
		Size:        meta.Size,
		ContentType: meta.ContentType,
		CreatedAt:   meta.Created().UTC(),
		ExpiresAt:   meta.Expires().UTC(),
	}
}

func (h *Handler) putObject(w http.ResponseWriter, r *http.Request) {
	opts := objstore.PutOptions{
		ContentType: r.Header.Get("Content-Type"),
		Metadata:    userMetadata(r.Header),
		Size:        r.ContentLength,
	}
	meta, err := h.store.Put(r.Context(), objectKey(r), r.Body, opts)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	setObjectHeaders(w, meta)
	writeJSON(w, http.StatusOK, newObjectResponse(meta))
}

func (h *Handler) getObject(w http.ResponseWriter, r *http.Request) {
	meta, body, err := h.store.Get(r.Context(), objectKey(r))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	defer body.Close()

	setObjectHeaders(w, meta)
	w.Header().Set("Content-Length", formatSize(meta.Size))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Str("key", meta.Key).Msg("failed to stream object")
	}
}

func (h *Handler) headObject(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.Head(r.Context(), objectKey(r))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	setObjectHeaders(w, meta)
	w.Header().Set("Content-Length", formatSize(meta.Size))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteObject(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), objectKey(r)); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func setObjectHeaders(w http.ResponseWriter, meta *types.ObjectMeta) {
	hdr := w.Header()
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr.Set("Content-Type", contentType)
	hdr.Set("ETag", `"`+meta.ETag+`"`)
	hdr.Set("Last-Modified", meta.Created().UTC().Format(http.TimeFormat))
	hdr.Set(headerExpiresAt, meta.Expires().UTC().Format(time.RFC3339))
	hdr.Set("Cache-Control", "no-store")
	for k, v := range meta.Metadata {
		hdr.Set(headerMetaPrefix+k, v)
	}
}

// userMetadata collects X-Credshare-Meta-* headers, keyed by the lower-cased suffix.
func userMetadata(hdr http.Header) map[string]string {
	var md map[string]string
	for name, values := range hdr {
		if !strings.HasPrefix(name, headerMetaPrefix) || len(values) == 0 {
			continue
		}
		if md == nil {
			md = make(map[string]string)
		}
		md[strings.ToLower(strings.TrimPrefix(name, headerMetaPrefix))] = values[0]
	}
	return md
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/objstore"
)

const (
	// formOverhead is the slack allowed for multipart boundaries and headers
	// on top of the file itself.
	formOverhead = 64 << 10

	keyRandomLength = 6
	keyAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

type uploadFileResponse struct {
	Success   bool      `json:"success"`
	Key       string    `json:"key"`
	FileURL   string    `json:"fileUrl"`
	FileName  string    `json:"fileName"`
	FileSize  int64     `json:"fileSize"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// upload accepts a single form file, the way the web uploader sends it, and
// stores it under a generated key.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apierr.ErrEntityTooLarge, h.tooLargeMessage())
			return
		}
		writeError(w, r, apierr.ErrMissingFile, "")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apierr.ErrMissingFile, "")
		return
	}
	defer file.Close()

	if !h.allowedFile(header.Filename) {
		writeError(w, r, apierr.ErrUnsupportedFileType,
			"file type not allowed, accepted: "+strings.Join(h.cfg.AllowedExtensions, " "))
		return
	}
	if header.Size > h.cfg.MaxUploadSize {
		writeError(w, r, apierr.ErrEntityTooLarge, h.tooLargeMessage())
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	now := time.Now()
	key := generateKey(header.Filename, now)

	meta, err := h.store.Put(r.Context(), key, file, objstore.PutOptions{
		ContentType: contentType,
		Size:        header.Size,
		Metadata: map[string]string{
			"original-name": header.Filename,
			"upload-time":   now.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadFileResponse{
		Success:   true,
		Key:       meta.Key,
		FileURL:   strings.TrimSuffix(h.cfg.PublicURL, "/") + "/objects/" + meta.Key,
		FileName:  header.Filename,
		FileSize:  meta.Size,
		ExpiresAt: meta.Expires().UTC(),
	})
}

func (h *Handler) allowedFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range h.cfg.AllowedExtensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func (h *Handler) tooLargeMessage() string {
	return fmt.Sprintf("file too large, maximum size is %s", humanize.IBytes(uint64(h.cfg.MaxUploadSize)))
}

// generateKey returns "<timestamp>-<random>-<sanitized name>", with the
// timestamp in UTC ISO 8601 form and ':' and '.' replaced by '-'.
func generateKey(name string, now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)

	var suffix [keyRandomLength]byte
	for i := range suffix {
		suffix[i] = keyAlphabet[rand.IntN(len(keyAlphabet))]
	}
	return ts + "-" + string(suffix[:]) + "-" + unsafeNameChars.ReplaceAllString(name, "_")
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/logger"
	"github.com/internaltools/credshare/pkg/objstore"
)

const (
	headerRequestID  = "X-Request-Id"
	headerExpiresAt  = "X-Expires-At"
	headerMetaPrefix = "X-Credshare-Meta-"

	retryAfterUnavailable = "5"
	retryAfterSlowDown    = "1"
)

// statusRecorder captures the status and size of a response.
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes code as a JSON error body. An empty message uses the
// code's description.
func writeError(w http.ResponseWriter, r *http.Request, code apierr.ErrorCode, message string) {
	resp := code.ToErrorResponseWithMessage("", message)
	resp.RequestID = requestIDFrom(r.Context())

	switch code {
	case apierr.ErrServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterUnavailable)
	case apierr.ErrSlowDown:
		w.Header().Set("Retry-After", retryAfterSlowDown)
	}
	apierr.WriteError(w, resp)
}

// writeStoreError maps an object store error to its API response. Server
// side failures are reported to sentry; their detail is not sent to clients.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	code := objstore.APIErrorCode(err)

	var message string
	switch {
	case errors.Is(err, objstore.ErrInvalidInput) && !errors.Is(err, objstore.ErrTooLarge):
		message = err.Error()
	case code == apierr.ErrServiceUnavailable, code == apierr.ErrInternalError:
		captureError(r, err)
		logger.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, r, code, message)
}

func captureError(r *http.Request, err error) {
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(r)
	}
	hub.CaptureException(err)
}

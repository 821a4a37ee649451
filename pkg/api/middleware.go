// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/logger"
)

const maxRequestIDLength = 64

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestContext assigns the request ID and attaches the request logger,
// the audit request info and a sentry hub to the context.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		remoteIP := clientIP(r)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = audit.WithRequestInfo(ctx, audit.RequestInfo{
			RequestID: id,
			RemoteIP:  remoteIP,
			UserAgent: r.UserAgent(),
		})

		l := logger.With().
			Str("request_id", id).
			Str("remote_ip", remoteIP).
			Logger()
		ctx = logger.WithLogger(ctx, &l)

		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(r)
		hub.Scope().SetTag("request_id", id)
		ctx = sentry.SetHubOnContext(ctx, hub)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c <= ' ' || c >= 0x7f {
			return false
		}
	}
	return true
}

// clientIP returns the host part of RemoteAddr. When proxy headers are
// trusted, handlers.ProxyHeaders has already rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// recoverPanics turns a handler panic into a 500 and reports it to sentry.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			hub := sentry.GetHubFromContext(r.Context())
			if hub == nil {
				hub = sentry.CurrentHub()
			}
			hub.RecoverWithContext(r.Context(), v)

			logger.Ctx(r.Context()).Error().
				Interface("panic", v).
				Str("stack", string(debug.Stack())).
				Msg("handler panicked")

			if !rec.wroteHeader {
				writeError(rec, r, apierr.ErrInternalError, "")
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

// limitRate rejects clients above their token bucket with 429.
func limitRate(limiter *clientLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(clientIP(r), time.Now()) {
			rateLimitedTotal.Inc()
			writeError(w, r, apierr.ErrSlowDown, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observeRequests records request metrics and a debug log line per request.
func observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeName(r)
		requestsTotal.WithLabelValues(route, r.Method, statusClass(rec.statusCode)).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

		logger.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.statusCode).
			Int64("bytes", rec.bytesWritten).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

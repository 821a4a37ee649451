// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP front end of the object store.
package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/types"
)

// ObjectStore is the object store as seen by the HTTP handlers.
type ObjectStore interface {
	Put(ctx context.Context, key string, payload io.Reader, opts objstore.PutOptions) (*types.ObjectMeta, error)
	Get(ctx context.Context, key string) (*types.ObjectMeta, io.ReadCloser, error)
	Head(ctx context.Context, key string) (*types.ObjectMeta, error)
	Delete(ctx context.Context, key string) error

	CreateMultipartUpload(ctx context.Context, key string, opts objstore.PutOptions) (*types.MultipartUpload, error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, payload io.Reader, size int64) (*types.MultipartPart, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []types.CompletedPart) (*types.ObjectMeta, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	ListParts(ctx context.Context, key, uploadID string) ([]*types.MultipartPart, error)
}

// AuditLog answers audit queries for GET /logs.
type AuditLog interface {
	Query(ctx context.Context, q audit.Query) ([]audit.Entry, error)
}

// Handler serves the object API.
type Handler struct {
	cfg     Config
	store   ObjectStore
	logs    AuditLog
	limiter *clientLimiter
	handler http.Handler
}

// NewHandler builds the router and middleware chain. logs may be nil, in
// which case GET /logs is not served.
func NewHandler(cfg Config, store ObjectStore, logs AuditLog) *Handler {
	cfg.Validate()
	h := &Handler{
		cfg:   cfg,
		store: store,
		logs:  logs,
	}
	if cfg.RateLimit > 0 {
		h.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	h.handler = h.chain(h.routes())
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(observeRequests)

	obj := r.PathPrefix("/objects").Subrouter()
	const key = "/{key:.+}"

	obj.HandleFunc(key, h.createUpload).Methods(http.MethodPost).MatcherFunc(hasQuery("uploads")).Name("create_upload")
	obj.HandleFunc(key, h.uploadPart).Methods(http.MethodPut).MatcherFunc(hasQuery("uploadId")).MatcherFunc(hasQuery("partNumber")).Name("upload_part")
	obj.HandleFunc(key, h.completeUpload).Methods(http.MethodPost).MatcherFunc(hasQuery("uploadId")).Name("complete_upload")
	obj.HandleFunc(key, h.abortUpload).Methods(http.MethodDelete).MatcherFunc(hasQuery("uploadId")).Name("abort_upload")
	obj.HandleFunc(key, h.listParts).Methods(http.MethodGet).MatcherFunc(hasQuery("uploadId")).Name("list_parts")

	obj.HandleFunc(key, h.putObject).Methods(http.MethodPut).Name("put_object")
	obj.HandleFunc(key, h.getObject).Methods(http.MethodGet).Name("get_object")
	obj.HandleFunc(key, h.headObject).Methods(http.MethodHead).Name("head_object")
	obj.HandleFunc(key, h.deleteObject).Methods(http.MethodDelete).Name("delete_object")

	r.HandleFunc("/upload", h.upload).Methods(http.MethodPost).Name("upload")
	if h.logs != nil {
		r.HandleFunc("/logs", h.queryLogs).Methods(http.MethodGet).Name("logs")
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apierr.ErrNoSuchKey, "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apierr.ErrMethodNotAllowed, "")
	})
	return r
}

// chain wraps the router, outermost first: access log, proxy headers, CORS,
// request context, panic recovery, rate limit.
func (h *Handler) chain(router http.Handler) http.Handler {
	var next http.Handler = router
	if h.limiter != nil {
		next = limitRate(h.limiter, next)
	}
	next = recoverPanics(next)
	next = withRequestContext(next)
	next = handlers.CORS(
		handlers.AllowedOrigins(h.cfg.CORSOrigins),
		handlers.AllowedMethods([]string{
			http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodHead,
		}),
		handlers.AllowedHeaders([]string{
			"Content-Type", "Content-Length", "Content-MD5", "Authorization", "X-Requested-With", headerRequestID,
		}),
		handlers.ExposedHeaders([]string{"ETag", headerExpiresAt, headerRequestID}),
		handlers.MaxAge(h.cfg.CORSMaxAge),
	)(next)
	if h.cfg.TrustProxy {
		next = handlers.ProxyHeaders(next)
	}
	if h.cfg.AccessLog {
		next = handlers.CombinedLoggingHandler(os.Stdout, next)
	}
	return next
}

func hasQuery(name string) mux.MatcherFunc {
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		_, ok := r.URL.Query()[name]
		return ok
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
	}
	return "unmatched"
}

func objectKey(r *http.Request) string {
	return mux.Vars(r)["key"]
}

func formatSize(n int64) string {
	return strconv.FormatInt(n, 10)
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/audit"
	memdb "github.com/internaltools/credshare/pkg/metadata/db/memory"
	"github.com/internaltools/credshare/pkg/objstore"
	"github.com/internaltools/credshare/pkg/storage/backend"
	"github.com/internaltools/credshare/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler *Handler
	store   *objstore.Store
	log     *audit.Log
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RateLimit = -1
	cfg.PublicURL = "https://share.example.com"
	for _, m := range mutate {
		m(&cfg)
	}

	auditLog := audit.New(audit.DefaultConfig(), audit.NewMemoryStore())
	t.Cleanup(auditLog.Stop)
	store := objstore.New(objstore.DefaultConfig(), memdb.New(), backend.NewMemoryStorage(), objstore.WithAuditor(auditLog))

	return &testServer{
		handler: NewHandler(cfg, store, auditLog),
		store:   store,
		log:     auditLog,
	}
}

func (s *testServer) do(method, target string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierr.Error {
	t.Helper()
	var e apierr.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestObjectLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/objects/team/creds.env", strings.NewReader("TOKEN=abc"), map[string]string{"Content-Type": "text/plain"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var put objectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &put))
	assert.Equal(t, "team/creds.env", put.Key)
	assert.Equal(t, int64(9), put.Size)
	assert.Equal(t, 24*time.Hour, put.ExpiresAt.Sub(put.CreatedAt))

	rec = s.do(http.MethodGet, "/objects/team/creds.env", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TOKEN=abc", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, `"`+put.ETag+`"`, rec.Header().Get("ETag"))
	assert.Equal(t, put.ExpiresAt.Format(time.RFC3339), rec.Header().Get(headerExpiresAt))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = s.do(http.MethodHead, "/objects/team/creds.env", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("Content-Length"))

	rec = s.do(http.MethodDelete, "/objects/team/creds.env", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/objects/team/creds.env", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "NoSuchKey", e.Code)
	assert.NotEmpty(t, e.RequestID)
	assert.Equal(t, e.RequestID, rec.Header().Get(headerRequestID))

	rec = s.do(http.MethodDelete, "/objects/team/creds.env", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "delete is idempotent")
}

func TestExpiredObjectIsNotServed(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(http.MethodPut, "/objects/a", strings.NewReader("secret"), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		time.Sleep(23*time.Hour + 59*time.Minute)
		rec = s.do(http.MethodGet, "/objects/a", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "secret", rec.Body.String())

		time.Sleep(2 * time.Minute)
		rec = s.do(http.MethodGet, "/objects/a", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUserMetadataHeaders(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/objects/k", strings.NewReader("v"), map[string]string{"X-Credshare-Meta-Owner": "ops"})
	require.Equal(t, http.StatusOK, rec.Code)

	meta, err := s.store.Head(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"owner": "ops"}, meta.Metadata)

	rec = s.do(http.MethodGet, "/objects/k", nil, nil)
	assert.Equal(t, "ops", rec.Header().Get("X-Credshare-Meta-Owner"))
}

func TestInvalidKey(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodPut, "/objects/"+strings.Repeat("k", objstore.MaxKeyLength+1), strings.NewReader("v"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidKey", decodeError(t, rec).Code)
}

func TestMultipartFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/objects/big.log?uploads", nil, map[string]string{"Content-Type": "text/plain"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.UploadID)

	rec = s.do(http.MethodPut, "/objects/big.log?partNumber=1&uploadId="+created.UploadID, strings.NewReader("line one\n"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var part partResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &part))
	assert.Equal(t, `"`+part.ETag+`"`, rec.Header().Get("ETag"))
	assert.NotEmpty(t, part.Checksum)

	rec = s.do(http.MethodGet, "/objects/big.log?uploadId="+created.UploadID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), part.ETag)

	body, err := json.Marshal(completeRequest{Parts: []types.CompletedPart{{PartNumber: 1, ETag: part.ETag}}})
	require.NoError(t, err)
	rec = s.do(http.MethodPost, "/objects/big.log?uploadId="+created.UploadID, bytes.NewReader(body), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/objects/big.log", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "line one\n", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	rec = s.do(http.MethodDelete, "/objects/big.log?uploadId="+created.UploadID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NoSuchUpload", decodeError(t, rec).Code)
}

func TestMultipartErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/objects/k?uploads", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var created uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = s.do(http.MethodPut, "/objects/k?partNumber=abc&uploadId="+created.UploadID, strings.NewReader("x"), nil)
	assert.Equal(t, "InvalidPartNumber", decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/objects/k?uploadId="+created.UploadID, strings.NewReader("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MalformedJSON", decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/objects/k?uploadId="+created.UploadID, strings.NewReader(`{"parts":[]}`), nil)
	assert.Equal(t, "InvalidPart", decodeError(t, rec).Code)

	rec = s.do(http.MethodDelete, "/objects/k?uploadId="+created.UploadID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func newUploadForm(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

var generatedKey = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z-[0-9a-z]{6}-`)

func TestUploadForm(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	body, contentType := newUploadForm(t, "file", "my creds (1).env", []byte("DB_PASSWORD=hunter2\n"))
	rec := s.do(http.MethodPost, "/upload", body, map[string]string{"Content-Type": contentType})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp uploadFileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "my creds (1).env", resp.FileName)
	assert.Equal(t, int64(20), resp.FileSize)
	assert.Regexp(t, generatedKey, resp.Key)
	assert.True(t, strings.HasSuffix(resp.Key, "-my_creds__1_.env"), resp.Key)
	assert.Equal(t, "https://share.example.com/objects/"+resp.Key, resp.FileURL)

	rec = s.do(http.MethodGet, "/objects/"+resp.Key, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DB_PASSWORD=hunter2\n", rec.Body.String())
	assert.Equal(t, "my creds (1).env", rec.Header().Get("X-Credshare-Meta-Original-Name"))
	assert.NotEmpty(t, rec.Header().Get("X-Credshare-Meta-Upload-Time"))
}

func TestUploadFormRejects(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *Config) { c.MaxUploadSize = 16 })

	body, contentType := newUploadForm(t, "other", "a.env", []byte("x"))
	rec := s.do(http.MethodPost, "/upload", body, map[string]string{"Content-Type": contentType})
	assert.Equal(t, "MissingFile", decodeError(t, rec).Code)

	rec = s.do(http.MethodPost, "/upload", strings.NewReader("plain body"), map[string]string{"Content-Type": "text/plain"})
	assert.Equal(t, "MissingFile", decodeError(t, rec).Code)

	body, contentType = newUploadForm(t, "file", "tool.exe", []byte("MZ"))
	rec = s.do(http.MethodPost, "/upload", body, map[string]string{"Content-Type": contentType})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UnsupportedFileType", decodeError(t, rec).Code)

	body, contentType = newUploadForm(t, "file", "big.txt", bytes.Repeat([]byte("x"), 32))
	rec = s.do(http.MethodPost, "/upload", body, map[string]string{"Content-Type": contentType})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "EntityTooLarge", e.Code)
	assert.Contains(t, e.Message, "16 B")
}

func TestAllowedFile(t *testing.T) {
	t.Parallel()
	h := NewHandler(DefaultConfig(), nil, nil)

	for _, name := range []string{".env", "prod.ENV", "notes.txt", "app.config", "values.yml", "x.yaml", "out.log", "a.json", "b.conf", "c.text"} {
		assert.True(t, h.allowedFile(name), name)
	}
	for _, name := range []string{"run.sh", "key.pem", "env", "archive.tar.gz"} {
		assert.False(t, h.allowedFile(name), name)
	}
}

func TestQueryLogs(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	hdr := map[string]string{"User-Agent": "curl/8", headerRequestID: "req-1"}
	s.do(http.MethodPut, "/objects/k", strings.NewReader("v"), hdr)
	s.do(http.MethodGet, "/objects/k", nil, hdr)
	s.do(http.MethodDelete, "/objects/k", nil, hdr)
	s.do(http.MethodPut, "/objects/other", strings.NewReader("v"), nil)
	require.NoError(t, s.log.Flush(context.Background()))

	rec := s.do(http.MethodGet, "/logs?key=k", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp logsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Count)

	var kinds []audit.EventType
	for _, e := range resp.Entries {
		kinds = append(kinds, e.Event)
		assert.Equal(t, "req-1", e.RequestID)
		assert.Equal(t, "192.0.2.1", e.RemoteIP)
		assert.Equal(t, "curl/8", e.UserAgent)
	}
	assert.Equal(t, []audit.EventType{audit.EventUpload, audit.EventAccess, audit.EventDelete}, kinds)

	rec = s.do(http.MethodGet, "/logs?key=k&limit=1", nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rec = s.do(http.MethodGet, "/logs?key=missing", nil, nil)
	assert.JSONEq(t, `{"entries":[],"count":0}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/logs?since=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodGet, "/logs?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	since := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec = s.do(http.MethodGet, "/logs?key=k&since="+since, nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestLogsRouteNeedsAuditLog(t *testing.T) {
	t.Parallel()
	store := objstore.New(objstore.DefaultConfig(), memdb.New(), backend.NewMemoryStorage())
	h := NewHandler(DefaultConfig(), store, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/objects/missing", nil, map[string]string{headerRequestID: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
	assert.Equal(t, "abc-123", decodeError(t, rec).RequestID)

	rec = s.do(http.MethodGet, "/objects/missing", nil, map[string]string{headerRequestID: "has space"})
	assert.NotEqual(t, "has space", rec.Header().Get(headerRequestID))
	assert.Len(t, rec.Header().Get(headerRequestID), 36)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 2
	})

	for range 2 {
		rec := s.do(http.MethodGet, "/objects/k", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := s.do(http.MethodGet, "/objects/k", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "SlowDown", decodeError(t, rec).Code)
	assert.Equal(t, retryAfterSlowDown, rec.Header().Get("Retry-After"))

	// Other clients have their own bucket.
	req := httptest.NewRequest(http.MethodGet, "/objects/k", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClientLimiterEvictsIdleClients(t *testing.T) {
	t.Parallel()

	l := newClientLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now))
	assert.True(t, l.Allow("b", now.Add(time.Second)))
	assert.Equal(t, 2, l.size())

	assert.True(t, l.Allow("c", now.Add(limiterIdleTTL+time.Minute)))
	assert.Equal(t, 1, l.size())
}

func TestCORS(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodOptions, "/objects/k", nil, map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPut,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = s.do(http.MethodGet, "/objects/k", nil, map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/upload", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "MethodNotAllowed", decodeError(t, rec).Code)

	rec = s.do(http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// stubStore fails Get in a configurable way.
type stubStore struct {
	ObjectStore
	get func() error
}

func (s stubStore) Get(context.Context, string) (*types.ObjectMeta, io.ReadCloser, error) {
	return nil, nil, s.get()
}

func TestUnavailableSetsRetryAfter(t *testing.T) {
	t.Parallel()

	h := NewHandler(DefaultConfig(), stubStore{get: func() error {
		return fmt.Errorf("redis: connection refused: %w", objstore.ErrUnavailable)
	}}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects/k", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, retryAfterUnavailable, rec.Header().Get("Retry-After"))
	e := decodeError(t, rec)
	assert.Equal(t, "ServiceUnavailable", e.Code)
	assert.NotContains(t, e.Message, "redis", "backend detail is not exposed")
}

func TestPanicRecovery(t *testing.T) {
	t.Parallel()

	h := NewHandler(DefaultConfig(), stubStore{get: func() error { panic("boom") }}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects/k", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "InternalError", decodeError(t, rec).Code)
}

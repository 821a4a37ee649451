// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/internaltools/credshare/pkg/apierr"
	"github.com/internaltools/credshare/pkg/audit"
	"github.com/internaltools/credshare/pkg/logger"
)

type logsResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// queryLogs serves GET /logs?key=K&since=T&until=T&limit=N, oldest first.
func (h *Handler) queryLogs(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := audit.Query{ObjectKey: params.Get("key")}

	var err error
	if q.Start, err = parseTimeParam(params.Get("since")); err != nil {
		writeError(w, r, apierr.ErrInvalidArgument, "since must be an RFC 3339 timestamp")
		return
	}
	if q.End, err = parseTimeParam(params.Get("until")); err != nil {
		writeError(w, r, apierr.ErrInvalidArgument, "until must be an RFC 3339 timestamp")
		return
	}
	if v := params.Get("limit"); v != "" {
		q.Limit, err = strconv.Atoi(v)
		if err != nil || q.Limit < 0 {
			writeError(w, r, apierr.ErrInvalidArgument, "limit must be a non-negative integer")
			return
		}
	}

	entries, err := h.logs.Query(r.Context(), q)
	if err != nil {
		captureError(r, err)
		logger.Ctx(r.Context()).Error().Err(err).Msg("audit query failed")
		writeError(w, r, apierr.ErrServiceUnavailable, "")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, logsResponse{Entries: entries, Count: len(entries)})
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

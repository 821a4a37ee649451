// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"fmt"
	"strings"
)

const logTimeLayout = "02/Jan/2006:15:04:05 -0700"

// FormatLines renders entries as space-delimited access-log lines:
//
//	bucket [time] remote_ip request_id operation key size "user_agent" event seq
func FormatLines(bucket string, entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s [%s] %s %s %s %s %d \"%s\" %s %d\n",
			orDash(bucket),
			e.Time.UTC().Format(logTimeLayout),
			orDash(e.RemoteIP),
			orDash(e.RequestID),
			e.Event.Operation(),
			formatKey(e.ObjectKey),
			e.Size,
			escapeQuotes(e.UserAgent),
			orDash(string(e.Event)),
			e.Seq,
		)
	}
	return buf.Bytes()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatKey keeps each line splittable on spaces.
func formatKey(key string) string {
	if key == "" {
		return "-"
	}
	return strings.NewReplacer(" ", "%20", "\n", "%0A", "\r", "%0D").Replace(key)
}

func escapeQuotes(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "\"", "\\\"")
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package backend

import (
	"os"

	"golang.org/x/sys/unix"
)

// Fdatasync syncs file data to disk without flushing unnecessary metadata.
// This is faster than fsync() because it only flushes metadata needed for
// correct data retrieval (e.g., file size) but not atime/mtime.
func Fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

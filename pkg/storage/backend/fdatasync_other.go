// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package backend

import "os"

// Fdatasync falls back to standard Sync on non-Linux platforms.
func Fdatasync(f *os.File) error {
	return f.Sync()
}

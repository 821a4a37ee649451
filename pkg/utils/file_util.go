// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ResolvePath expands ~ and environment variables and makes the result absolute.
func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		if usr, err := user.Current(); err == nil {
			path = filepath.Join(usr.HomeDir, strings.TrimPrefix(path, "~"))
		}
	}

	path = os.ExpandEnv(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/internaltools/credshare/pkg/types"
)

// MaxKeyLength is the longest key accepted, in bytes.
const MaxKeyLength = 1024

// ValidateKey checks that key is usable as an object key.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return newError("validate", "", ErrInvalidKey, errors.New("key is empty"))
	case len(key) > MaxKeyLength:
		return newError("validate", "", ErrInvalidKey, errors.New("key is longer than 1024 bytes"))
	case !utf8.ValidString(key):
		return newError("validate", "", ErrInvalidKey, errors.New("key is not valid UTF-8"))
	case strings.HasPrefix(key, "/"):
		return newError("validate", key, ErrInvalidKey, errors.New("key starts with '/'"))
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return newError("validate", "", ErrInvalidKey, errors.New("key contains control characters"))
		}
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return newError("validate", key, ErrInvalidKey, errors.New("key contains a '..' segment"))
		}
	}
	return nil
}

func validatePartNumber(n int) error {
	if n < 1 || n > types.MaxPartNumber {
		return newError("upload part", "", ErrInvalidPartNumber, nil)
	}
	return nil
}

// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"errors"
	"fmt"

	"github.com/internaltools/credshare/pkg/apierr"
)

// Error classes. Every error returned by Store matches exactly one of these
// with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("storage unavailable")
	ErrInvalidInput = errors.New("invalid input")
)

// Specializations that still match their class.
var (
	ErrNoSuchUpload      = fmt.Errorf("no such upload: %w", ErrNotFound)
	ErrTooLarge          = fmt.Errorf("object too large: %w", ErrInvalidInput)
	ErrInvalidKey        = fmt.Errorf("invalid key: %w", ErrInvalidInput)
	ErrInvalidPart       = fmt.Errorf("invalid part: %w", ErrInvalidInput)
	ErrInvalidPartOrder  = fmt.Errorf("invalid part order: %w", ErrInvalidInput)
	ErrInvalidPartNumber = fmt.Errorf("invalid part number: %w", ErrInvalidInput)
)

// Error carries the failing operation and key alongside the error class.
type Error struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, key string, kind, err error) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

// unavailable wraps a backend failure unless it is already classified.
func unavailable(op, key string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return newError(op, key, ErrUnavailable, err)
}

// APIErrorCode maps a Store error to the HTTP API error code.
func APIErrorCode(err error) apierr.ErrorCode {
	switch {
	case err == nil:
		return apierr.ErrNone
	case errors.Is(err, ErrNoSuchUpload):
		return apierr.ErrNoSuchUpload
	case errors.Is(err, ErrNotFound):
		return apierr.ErrNoSuchKey
	case errors.Is(err, ErrConflict):
		return apierr.ErrKeyExists
	case errors.Is(err, ErrTooLarge):
		return apierr.ErrEntityTooLarge
	case errors.Is(err, ErrInvalidKey):
		return apierr.ErrInvalidKey
	case errors.Is(err, ErrInvalidPartOrder):
		return apierr.ErrInvalidPartOrder
	case errors.Is(err, ErrInvalidPartNumber):
		return apierr.ErrInvalidPartNumber
	case errors.Is(err, ErrInvalidPart):
		return apierr.ErrInvalidPart
	case errors.Is(err, ErrInvalidInput):
		return apierr.ErrInvalidArgument
	case errors.Is(err, ErrUnavailable):
		return apierr.ErrServiceUnavailable
	default:
		return apierr.ErrInternalError
	}
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func isConflict(err error) bool { return errors.Is(err, ErrConflict) }

func isInvalid(err error) bool { return errors.Is(err, ErrInvalidInput) }

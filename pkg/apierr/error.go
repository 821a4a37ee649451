// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package apierr defines the error codes returned by the HTTP API and their
// JSON representation.
package apierr

import (
	"encoding/json"
	"net/http"
	"strings"
)

// APIError represents an API error with its code, description, and HTTP status.
type APIError struct {
	Code           string
	Description    string
	HTTPStatusCode int
}

// Error is the JSON error body returned to clients.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"error"`
	Resource  string `json:"resource,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	HTTPCode  int    `json:"-"`
}

func (e Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	b.WriteString(": ")
	if e.Resource != "" {
		b.WriteString(e.Resource)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ErrorCode is an enumeration of API error codes.
type ErrorCode int

const (
	ErrNone ErrorCode = iota

	// =========================================================================
	// Object errors
	// =========================================================================
	ErrNoSuchKey
	ErrKeyExists
	ErrInvalidKey
	ErrEntityTooLarge

	// =========================================================================
	// Multipart errors
	// =========================================================================
	ErrNoSuchUpload
	ErrInvalidPart
	ErrInvalidPartOrder
	ErrInvalidPartNumber

	// =========================================================================
	// Request errors
	// =========================================================================
	ErrInvalidArgument
	ErrMalformedJSON
	ErrMissingFile
	ErrUnsupportedFileType
	ErrMethodNotAllowed
	ErrSlowDown

	// =========================================================================
	// Server errors
	// =========================================================================
	ErrServiceUnavailable
	ErrInternalError
)

// errorCodeResponse maps error codes to their definitions.
var errorCodeResponse = map[ErrorCode]APIError{
	ErrNoSuchKey: {
		Code:           "NoSuchKey",
		Description:    "The specified key does not exist or has expired.",
		HTTPStatusCode: http.StatusNotFound,
	},
	ErrKeyExists: {
		Code:           "KeyAlreadyExists",
		Description:    "An unexpired object already exists under this key.",
		HTTPStatusCode: http.StatusConflict,
	},
	ErrInvalidKey: {
		Code:           "InvalidKey",
		Description:    "The specified key is not valid.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrEntityTooLarge: {
		Code:           "EntityTooLarge",
		Description:    "Your proposed upload exceeds the maximum allowed size.",
		HTTPStatusCode: http.StatusRequestEntityTooLarge,
	},
	ErrNoSuchUpload: {
		Code:           "NoSuchUpload",
		Description:    "The specified multipart upload does not exist. The upload ID might be invalid, or the upload might have been aborted, completed or expired.",
		HTTPStatusCode: http.StatusNotFound,
	},
	ErrInvalidPart: {
		Code:           "InvalidPart",
		Description:    "One or more of the specified parts could not be found or its entity tag did not match.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrInvalidPartOrder: {
		Code:           "InvalidPartOrder",
		Description:    "The list of parts was not in ascending order.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrInvalidPartNumber: {
		Code:           "InvalidPartNumber",
		Description:    "Part number must be an integer between 1 and 10000, inclusive.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrInvalidArgument: {
		Code:           "InvalidArgument",
		Description:    "Invalid argument.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrMalformedJSON: {
		Code:           "MalformedJSON",
		Description:    "The request body is not well-formed JSON.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrMissingFile: {
		Code:           "MissingFile",
		Description:    "No file provided.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrUnsupportedFileType: {
		Code:           "UnsupportedFileType",
		Description:    "File type not allowed.",
		HTTPStatusCode: http.StatusBadRequest,
	},
	ErrMethodNotAllowed: {
		Code:           "MethodNotAllowed",
		Description:    "The specified method is not allowed against this resource.",
		HTTPStatusCode: http.StatusMethodNotAllowed,
	},
	ErrSlowDown: {
		Code:           "SlowDown",
		Description:    "Please reduce your request rate.",
		HTTPStatusCode: http.StatusTooManyRequests,
	},
	ErrServiceUnavailable: {
		Code:           "ServiceUnavailable",
		Description:    "The storage backend is temporarily unavailable. Please retry.",
		HTTPStatusCode: http.StatusServiceUnavailable,
	},
	ErrInternalError: {
		Code:           "InternalError",
		Description:    "We encountered an internal error. Please try again.",
		HTTPStatusCode: http.StatusInternalServerError,
	},
}

// APIError returns the full APIError struct for this error code.
func (e ErrorCode) APIError() APIError {
	if err, ok := errorCodeResponse[e]; ok {
		return err
	}
	return errorCodeResponse[ErrInternalError]
}

// Code returns the error code string.
func (e ErrorCode) Code() string {
	return e.APIError().Code
}

// Description returns the error description.
func (e ErrorCode) Description() string {
	return e.APIError().Description
}

// Error implements the error interface.
func (e ErrorCode) Error() string {
	return e.Description()
}

// HTTPStatusCode returns the HTTP status code for this error.
func (e ErrorCode) HTTPStatusCode() int {
	return e.APIError().HTTPStatusCode
}

// ToErrorResponse creates an Error response suitable for JSON serialization.
func (e ErrorCode) ToErrorResponse(resource string) Error {
	return e.ToErrorResponseWithMessage(resource, "")
}

// ToErrorResponseWithMessage creates an Error response with a custom message.
// An empty message falls back to the code's description.
func (e ErrorCode) ToErrorResponseWithMessage(resource, message string) Error {
	api := e.APIError()
	if message == "" {
		message = api.Description
	}
	return Error{
		Code:     api.Code,
		Message:  message,
		Resource: resource,
		HTTPCode: api.HTTPStatusCode,
	}
}

// WriteError writes resp as a JSON body with its HTTP status.
func WriteError(w http.ResponseWriter, resp Error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(resp.HTTPCode)
	_ = json.NewEncoder(w).Encode(resp)
}

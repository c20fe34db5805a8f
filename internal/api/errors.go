// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error variables for common backend failures.
var (
	// ErrNoToken indicates the token source returned an empty credential.
	ErrNoToken = errors.New("no credential available")

	// ErrResponseTooLarge indicates a response body exceeded MaxResponseSize.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// TransportError is a failure to reach the backend, or a 5xx response.
// It is transient; callers surface it and do not retry automatically.
type TransportError struct {
	Op     string // e.g. "GET /chats"
	Status int    // zero for network failures
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server error (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError is a rejected or unavailable credential.
type AuthError struct {
	Op        string
	Status    int  // 401 or 403; zero if the token source failed
	Forbidden bool // authenticated but not permitted
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: credential unavailable: %v", e.Op, e.Err)
	case e.Forbidden:
		return fmt.Sprintf("%s: forbidden: %s", e.Op, e.Message)
	default:
		return fmt.Sprintf("%s: authentication failed: %s", e.Op, e.Message)
	}
}

// Unwrap returns the token source error, if any.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx response that is neither an auth failure nor a
// server error.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// =============================================================================
// ERROR RESPONSE HANDLING
// =============================================================================

// apiErrorResponse is the backend's error body. Validation failures carry
// a list in detail instead of a string.
type apiErrorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// errorMessage extracts a human-readable message from an error body.
func errorMessage(statusCode int, body []byte) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(apiErr.Detail, &detail); err == nil && detail != "" {
			return detail
		}
		return string(apiErr.Detail)
	}

	if msg := strings.TrimSpace(string(body)); msg != "" {
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return msg
	}
	return http.StatusText(statusCode)
}

// handleErrorResponse converts HTTP error responses to typed errors.
func handleErrorResponse(op string, statusCode int, body []byte) error {
	msg := errorMessage(statusCode, body)

	switch {
	case statusCode == http.StatusUnauthorized:
		return &AuthError{Op: op, Status: statusCode, Message: msg}
	case statusCode == http.StatusForbidden:
		return &AuthError{Op: op, Status: statusCode, Forbidden: true, Message: msg}
	case statusCode >= 500:
		return &TransportError{Op: op, Status: statusCode, Err: errors.New(msg)}
	default:
		return &StatusError{Op: op, Status: statusCode, Message: msg}
	}
}

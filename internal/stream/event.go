// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// doneSentinel is the bare terminal marker some backends send instead of
// a {"done": true} object.
const doneSentinel = "[DONE]"

// ErrNotData is returned by DecodeEvent for frames that carry no event
// payload. Callers skip them.
var ErrNotData = errors.New("frame is not a data frame")

// =============================================================================
// EVENT
// =============================================================================

// Event is the decoded payload of one data frame. Exactly which fields are
// set depends on the frame's role in the stream:
//
//	{"error": "..."}                     backend failure
//	{"message_id": 7, "content": "Hi"}   first identified chunk
//	{"content": " there"}                continuation
//	{"done": true}                       terminal marker
type Event struct {
	MessageID int64  `json:"message_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Done      bool   `json:"done,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HasMessageID returns true if the event identifies an assistant message.
func (e Event) HasMessageID() bool {
	return e.MessageID != 0
}

// IsError returns true if the event reports a backend failure.
func (e Event) IsError() bool {
	return e.Error != ""
}

// =============================================================================
// DECODE ERROR
// =============================================================================

// DecodeError reports a data frame whose payload is not well-formed.
// It is local to one frame; the stream itself remains usable.
type DecodeError struct {
	Payload string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode stream frame %q: %v", truncatePayload(e.Payload), e.Err)
}

// Unwrap returns the underlying parse error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DecodeEvent parses a data frame's JSON payload.
func DecodeEvent(f Frame) (Event, error) {
	if !f.IsData() {
		return Event{}, ErrNotData
	}

	payload := strings.TrimSpace(f.Payload)
	if payload == doneSentinel {
		return Event{Done: true}, nil
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, &DecodeError{Payload: f.Payload, Err: err}
	}
	return ev, nil
}

func truncatePayload(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/docchat/internal/api"
)

var (
	// ErrNoChatSelected is returned by operations that need an active chat.
	ErrNoChatSelected = errors.New("no chat selected")

	// ErrSendInFlight is returned when a chat already has a reply streaming.
	ErrSendInFlight = errors.New("a reply is still streaming for this chat")

	// ErrUnknownChat is returned when navigating to a chat not in the list.
	ErrUnknownChat = errors.New("unknown chat")
)

// ValidationError is user input rejected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StreamError is an explicit error frame from the backend. It is fatal to
// the send; content received before it stays in the store.
type StreamError struct {
	ChatID    int64
	MessageID int64 // zero if no assistant message was created
	Partial   string
	Message   string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("chat %d: stream failed: %s", e.ChatID, e.Message)
}

// UserMessage turns an operation error into the short text shown in a
// notification.
func UserMessage(err error) string {
	var (
		verr  *ValidationError
		serr  *StreamError
		aerr  *api.AuthError
		terr  *api.TransportError
		sterr *api.StatusError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Message
	case errors.Is(err, ErrNoChatSelected):
		return "Select or create a chat first"
	case errors.Is(err, ErrSendInFlight):
		return "Wait for the current reply to finish"
	case errors.Is(err, ErrUnknownChat):
		return "That chat no longer exists"
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "The server took too long to respond"
	case errors.As(err, &serr):
		return "The assistant could not answer: " + serr.Message
	case errors.As(err, &aerr):
		if aerr.Forbidden {
			return "You do not have permission to do that"
		}
		return "Your session has expired, please sign in again"
	case errors.As(err, &terr):
		return "Cannot reach the server, check your connection and try again"
	case errors.As(err, &sterr):
		return sterr.Message
	}
	return err.Error()
}

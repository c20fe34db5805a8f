// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a chat.
type Message struct {
	// Identity. ID is assigned by the backend; ClientID by this process for
	// messages synthesized locally.
	ID       int64  `json:"id"`
	ClientID string `json:"-"`
	ChatID   int64  `json:"chat_id"`

	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Files     []File    `json:"files,omitempty"`

	// Provisional marks an optimistic user message the backend has not
	// confirmed yet.
	Provisional bool `json:"-"`

	// Streaming marks an assistant message still receiving content.
	Streaming bool `json:"-"`
}

// NewProvisionalMessage creates the optimistic user message shown the moment
// a send is issued.
func NewProvisionalMessage(chatID int64, content string, files []File) Message {
	return Message{
		ClientID:    NewClientID(),
		ChatID:      chatID,
		Role:        RoleUser,
		Content:     content,
		CreatedAt:   time.Now(),
		Files:       cloneFiles(files),
		Provisional: true,
	}
}

// NewAssistantMessage creates a streaming assistant message with a
// server-assigned ID.
func NewAssistantMessage(chatID, id int64, content string) Message {
	return Message{
		ID:        id,
		ClientID:  NewClientID(),
		ChatID:    chatID,
		Role:      RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
		Streaming: true,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsConfirmed returns true if the message carries a server-assigned ID.
func (m *Message) IsConfirmed() bool {
	return m.ID != 0 && !m.Provisional
}

// Matches reports whether two messages refer to the same logical message:
// same server ID, or same client ID when either side is local.
func (m *Message) Matches(other Message) bool {
	if m.ID != 0 && other.ID != 0 {
		return m.ID == other.ID
	}
	return m.ClientID != "" && m.ClientID == other.ClientID
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := strings.ReplaceAll(m.Content, "\n", " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	m.Files = cloneFiles(m.Files)
	return m
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// NewClientID creates a unique client-side identifier.
func NewClientID() string {
	return "msg_" + uuid.NewString()
}

func cloneFiles(files []File) []File {
	if files == nil {
		return nil
	}
	out := make([]File, len(files))
	copy(out, files)
	return out
}

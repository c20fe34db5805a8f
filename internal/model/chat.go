// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// DefaultTitle is the placeholder title every new chat starts with.
const DefaultTitle = "New Chat"

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat holds the metadata of a single conversation. Messages are kept by the
// session store, not on the chat itself.
type Chat struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
	MessageCount  int        `json:"message_count"`
}

// GetTitle returns the chat title or the default placeholder.
func (c *Chat) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}

// HasDefaultTitle returns true while the chat still carries the placeholder
// title, which makes it eligible for a provisional title.
func (c *Chat) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultTitle
}

// LastActivity returns the most recent message time, falling back to the
// creation time for chats without messages.
func (c *Chat) LastActivity() time.Time {
	if c.LastMessageAt != nil && !c.LastMessageAt.IsZero() {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Clone creates a copy that does not share the LastMessageAt pointer.
func (c Chat) Clone() Chat {
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		c.LastMessageAt = &t
	}
	return c
}

// =============================================================================
// FILE TYPE
// =============================================================================

// File is an uploaded document. Chats reference files by ID; the content
// lives in backend storage under StorageKey.
type File struct {
	ID         int64     `json:"id"`
	Name       string    `json:"original_name"`
	StorageKey string    `json:"s3_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// FileIDs extracts the IDs of files, preserving order.
func FileIDs(files []File) []int64 {
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return ids
}

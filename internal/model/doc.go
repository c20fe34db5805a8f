// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats, messages, and files.
//
// These types mirror the backend's JSON representation and carry the extra
// client-side state the session store needs to reconcile optimistic
// updates with server-confirmed data.
//
// # Key Types
//
//   - Chat: A conversation owned by the user, with a title and counters
//   - Message: A single user or assistant message within a chat
//   - File: An uploaded document in the user's library
//   - Role: Message role enumeration (user, assistant)
//
// # Usage
//
// Synthesize an optimistic user message before the send reaches the backend:
//
//	msg := model.NewProvisionalMessage(chatID, "Hello!", files)
//	store.AppendMessage(chatID, msg)
//
// Assistant messages are created from the first identified stream frame:
//
//	msg := model.NewAssistantMessage(chatID, messageID, "Hi")
package model

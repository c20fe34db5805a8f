// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives a docchat session against the backend.
//
// The Engine owns every user-triggered operation: sending a message and
// folding its streamed reply into the session store, navigating between
// chats, and keeping a chat's attachment set consistent with the file
// library. Every store write is keyed by the chat an operation was issued
// for, never by the current selection, so background work finishing after
// the user navigates away lands in the right chat.
//
// # Sending
//
//	res, err := engine.Send(ctx, "Summarize the report")
//
// Send appends the user's message immediately, then applies the reply
// frame by frame through an Accumulator. Failures are reported through the
// engine's notify.Manager and returned.
//
// # Navigation
//
//	err := engine.Initialize(ctx, lastChatID)
//	err = engine.SelectChat(ctx, id)
//
// A chat's messages, attachments and the library load in parallel and are
// committed as one update. Results of a load superseded by a newer load of
// the same chat are discarded.
package chat

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the in-memory session store.
//
// The Store is the single authoritative model of the user's chats, the
// selected chat, messages per chat, attachment sets per chat, and the file
// library. It is created on authentication and torn down with Clear on
// logout. Every operation is atomic from a reader's point of view: a View
// never mixes one chat's header with another chat's messages or files.
//
// All writes are keyed by chat ID. The current selection only decides what
// View returns; it never redirects a write.
//
// # Key Types
//
//   - Store: Mutex-guarded session state
//   - View: Consistent snapshot of the selected chat
//   - LoadTicket: Generation tag for one chat load
//   - Change: Notification delivered to subscribers
//
// # Usage
//
//	store := session.NewStore()
//	unsubscribe := store.Subscribe(func(c session.Change) {
//	    redraw(store.View())
//	})
//	defer unsubscribe()
//
//	ticket := store.BeginLoad(chatID)
//	// ... fetch messages, chat files and library ...
//	store.CommitChatLoad(ticket, session.ChatLoad{Messages: msgs})
//
// Subscribers are invoked after the store's lock is released and may call
// back into the store.
package session

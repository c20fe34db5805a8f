// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the document-assistant backend.
//
// The client covers chats, messages, the streaming send endpoint, chat
// attachments, and the user's file library. Every request carries a bearer
// token obtained from a TokenSource immediately before the request is made;
// the client never caches or refreshes tokens itself.
//
// # Key Types
//
//   - Client: Backend client with request pacing and size limits
//   - TokenSource: Asynchronous credential provider
//   - TransportError: Network failure or 5xx response
//   - AuthError: Credential rejected (401/403) or unavailable
//   - StatusError: Any other non-2xx response
//
// # Usage
//
//	client := api.NewClient(api.Options{BaseURL: cfg.API.BaseURL}, tokens)
//	chats, err := client.ListChats(ctx)
//
//	body, err := client.SendMessage(ctx, chatID, "Hello", nil)
//	defer body.Close()
//	r := stream.NewReader(body)
//
// # Security
//
// Authorization headers and request bodies are never logged. Response
// bodies are capped at MaxResponseSize.
package api

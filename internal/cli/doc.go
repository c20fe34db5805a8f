// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the docchat command line.
//
// Every command runs against one chat engine built from the configuration:
// the session is loaded, the command runs, background title updates are
// awaited and the selected chat is remembered for the next invocation.
//
// # Commands Overview
//
//   - chats, new, rename, show: chat list and transcripts
//   - ask: send one message and stream the reply
//   - chat: interactive session with line editing and history
//   - files, upload, attach, detach, link: file library and attachments
//   - status: session summary
//   - config: view and edit ~/.docchat/config.toml
//
// Operation failures are reported as notifications on stderr. All commands
// support --json for scripting.
//
// # Usage
//
//	os.Exit(cli.Execute(ctx, os.Args[1:], cli.Options{}))
package cli

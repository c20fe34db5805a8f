// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/session"
)

// Initialize loads the chat list and the file library in parallel, then
// selects preferredChatID if it exists, or else the first chat, and loads
// it. On failure the store is left empty but consistent.
func (e *Engine) Initialize(ctx context.Context, preferredChatID int64) error {
	var (
		chats   []model.Chat
		library []model.File
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		chats, err = e.backend.ListChats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		library, err = e.backend.ListFiles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		e.store.Select(0)
		e.store.SetChats(nil)
		e.store.SetLibrary(nil)
		return e.fail("Load chats", err)
	}

	e.store.SetChats(chats)
	e.store.SetLibrary(library)
	e.logger.Info("session initialized", "chats", len(chats), "files", len(library))

	target := int64(0)
	if _, ok := e.store.Chat(preferredChatID); ok && preferredChatID != 0 {
		target = preferredChatID
	} else if len(chats) > 0 {
		target = chats[0].ID
	}
	e.store.Select(target)
	if target == 0 {
		return nil
	}
	return e.loadChat(ctx, target)
}

// SelectChat makes id the active chat and loads its messages, attachments
// and the library as one update.
func (e *Engine) SelectChat(ctx context.Context, id int64) error {
	if _, ok := e.store.Chat(id); !ok {
		return e.fail("Open chat", fmt.Errorf("chat %d: %w", id, ErrUnknownChat))
	}
	e.store.Select(id)
	return e.loadChat(ctx, id)
}

// Reload reloads the active chat.
func (e *Engine) Reload(ctx context.Context) error {
	id := e.store.SelectedChatID()
	if id == 0 {
		return e.fail("Reload", ErrNoChatSelected)
	}
	return e.loadChat(ctx, id)
}

// loadChat fetches one chat's state in parallel and commits it under a
// load ticket. A superseded load is dropped silently; a failed one empties
// the chat's slots, keeping only the messages of a send still streaming.
func (e *Engine) loadChat(ctx context.Context, chatID int64) error {
	ticket := e.store.BeginLoad(chatID)
	var load session.ChatLoad

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		load.Messages, err = e.backend.ListMessages(gctx, chatID)
		return err
	})
	g.Go(func() error {
		var err error
		load.Attachments, err = e.backend.ListChatFiles(gctx, chatID)
		return err
	})
	g.Go(func() error {
		var err error
		load.Library, err = e.backend.ListFiles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		if !e.store.ResetChat(ticket) {
			e.logger.Debug("superseded load failed", "chat_id", chatID, "error", err)
			return nil
		}
		return e.fail("Load chat", err)
	}

	if load.Library == nil {
		load.Library = []model.File{}
	}
	if !e.store.CommitChatLoad(ticket, load) {
		e.logger.Debug("discarding superseded load", "chat_id", chatID)
		return nil
	}
	e.logger.Debug("chat loaded", "chat_id", chatID, "messages", len(load.Messages), "files", len(load.Attachments))
	return nil
}

// CreateChat creates a chat with the default title, puts it first in the
// list and selects it with empty message and attachment views.
func (e *Engine) CreateChat(ctx context.Context) (model.Chat, error) {
	chat, err := e.backend.CreateChat(ctx, model.DefaultTitle)
	if err != nil {
		return model.Chat{}, e.fail("New chat", err)
	}

	e.store.PrependChat(chat)
	e.store.Select(chat.ID)
	e.store.CommitChatLoad(e.store.BeginLoad(chat.ID), session.ChatLoad{})
	return chat, nil
}

// RenameChat sets a chat's title.
func (e *Engine) RenameChat(ctx context.Context, id int64, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return e.fail("Rename", &ValidationError{Field: "title", Message: "Title is empty"})
	}
	if _, ok := e.store.Chat(id); !ok {
		return e.fail("Rename", fmt.Errorf("chat %d: %w", id, ErrUnknownChat))
	}

	updated, err := e.backend.UpdateChatTitle(ctx, id, title)
	if err != nil {
		return e.fail("Rename", err)
	}
	if updated.Title != "" {
		title = updated.Title
	}
	e.store.SetChatTitle(id, title)
	return nil
}

// RefreshChats reloads the chat list, keeping the selection.
func (e *Engine) RefreshChats(ctx context.Context) error {
	chats, err := e.backend.ListChats(ctx)
	if err != nil {
		return e.fail("Refresh chats", err)
	}
	e.store.SetChats(chats)
	return nil
}

// Logout waits for background work and tears the session down.
func (e *Engine) Logout() {
	e.Wait()
	e.store.Clear()
	e.toasts.Clear()
	e.logger.Info("session cleared")
}

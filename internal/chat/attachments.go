// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/docchat/internal/model"
)

// UploadFile uploads a file into the library. When fromComposer is set the
// file is also attached to the chat that was active when the upload began.
func (e *Engine) UploadFile(ctx context.Context, name string, r io.Reader, fromComposer bool) (model.File, error) {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return model.File{}, e.fail("Upload", &ValidationError{Field: "file", Message: "File name is empty"})
	}
	chatID := e.store.SelectedChatID()

	f, err := e.backend.UploadFile(ctx, name, r)
	if err != nil {
		return model.File{}, e.fail("Upload", err)
	}

	e.store.AddToLibrary(f)
	if fromComposer && chatID != 0 {
		e.store.Attach(chatID, f.ID)
	}
	e.logger.Info("file uploaded", "file_id", f.ID, "name", f.Name, "chat_id", chatID)
	e.toasts.Success("Uploaded " + f.Name)
	return f, nil
}

// RemoveFile detaches a file from the active chat. The local removal
// happens first and is kept even if the backend call fails.
func (e *Engine) RemoveFile(ctx context.Context, fileID int64) error {
	chatID := e.store.SelectedChatID()
	if chatID == 0 {
		return e.fail("Remove file", ErrNoChatSelected)
	}

	e.store.Detach(chatID, fileID)
	if err := e.backend.DetachFile(ctx, chatID, fileID); err != nil {
		return e.fail("Remove file", err)
	}

	library, err := e.backend.ListFiles(ctx)
	if err != nil {
		return e.fail("Refresh files", err)
	}
	e.store.SetLibrary(library)
	return nil
}

// AttachToNewChat creates a chat, attaches the file to it, and opens it.
func (e *Engine) AttachToNewChat(ctx context.Context, fileID int64) (model.Chat, error) {
	chat, err := e.backend.CreateChat(ctx, model.DefaultTitle)
	if err != nil {
		return model.Chat{}, e.fail("New chat", err)
	}
	e.store.PrependChat(chat)

	if err := e.backend.AttachFiles(ctx, chat.ID, []int64{fileID}); err != nil {
		return chat, e.fail("Attach file", err)
	}

	e.store.Select(chat.ID)
	if err := e.loadChat(ctx, chat.ID); err != nil {
		return chat, err
	}
	return chat, nil
}

// AttachToActiveChat attaches a library file to the active chat, then
// refreshes that chat's attachment set and the library.
func (e *Engine) AttachToActiveChat(ctx context.Context, fileID int64) error {
	chatID := e.store.SelectedChatID()
	if chatID == 0 {
		return e.fail("Attach file", ErrNoChatSelected)
	}

	if err := e.backend.AttachFiles(ctx, chatID, []int64{fileID}); err != nil {
		return e.fail("Attach file", err)
	}
	e.store.Attach(chatID, fileID)

	return e.refreshFiles(ctx, chatID)
}

// AttachToLatestChat attaches a file to the backend's most recently used
// chat and returns it. The returned chat's attachments, the active chat's
// attachments and the library are refreshed.
func (e *Engine) AttachToLatestChat(ctx context.Context, fileID int64) (model.Chat, error) {
	chat, err := e.backend.AttachToLatestChat(ctx, []int64{fileID})
	if err != nil {
		return model.Chat{}, e.fail("Attach file", err)
	}
	if _, ok := e.store.Chat(chat.ID); !ok {
		e.store.PrependChat(chat)
	}

	if err := e.refreshFiles(ctx, chat.ID, e.store.SelectedChatID()); err != nil {
		return chat, err
	}
	return chat, nil
}

// refreshFiles reloads the attachment sets of chatIDs and the library in
// parallel, and commits them as one update. Zero IDs are skipped.
func (e *Engine) refreshFiles(ctx context.Context, chatIDs ...int64) error {
	var ids []int64
	for _, id := range chatIDs {
		if id != 0 && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	var library []model.File
	sets := make([][]model.File, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			var err error
			sets[i], err = e.backend.ListChatFiles(gctx, id)
			return err
		})
	}
	g.Go(func() error {
		var err error
		library, err = e.backend.ListFiles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return e.fail("Refresh files", err)
	}

	byChat := make(map[int64][]model.File, len(ids))
	for i, id := range ids {
		byChat[id] = sets[i]
	}
	if library == nil {
		library = []model.File{}
	}
	e.store.SetFiles(library, byChat)
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/notify"
	"github.com/jeranaias/docchat/internal/session"
)

// Backend is the slice of the backend API the engine depends on.
// *api.Client implements it.
type Backend interface {
	ListChats(ctx context.Context) ([]model.Chat, error)
	CreateChat(ctx context.Context, title string) (model.Chat, error)
	UpdateChatTitle(ctx context.Context, chatID int64, title string) (model.Chat, error)
	ListMessages(ctx context.Context, chatID int64) ([]model.Message, error)
	SendMessage(ctx context.Context, chatID int64, content string, fileIDs []int64) (io.ReadCloser, error)

	ListChatFiles(ctx context.Context, chatID int64) ([]model.File, error)
	AttachFiles(ctx context.Context, chatID int64, fileIDs []int64) error
	DetachFile(ctx context.Context, chatID, fileID int64) error
	AttachToLatestChat(ctx context.Context, fileIDs []int64) (model.Chat, error)

	ListFiles(ctx context.Context) ([]model.File, error)
	UploadFile(ctx context.Context, name string, r io.Reader) (model.File, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithNotifier sets where operation failures are reported.
func WithNotifier(m *notify.Manager) Option {
	return func(e *Engine) {
		if m != nil {
			e.toasts = m
		}
	}
}

// WithTitleMaxRunes sets the provisional title length.
func WithTitleMaxRunes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.titleMaxRunes = n
		}
	}
}

// Engine runs session operations against a Backend and records their
// results in a session.Store. It is safe for concurrent use.
type Engine struct {
	backend       Backend
	store         *session.Store
	toasts        *notify.Manager
	logger        *slog.Logger
	titleMaxRunes int

	// background title updates
	bg sync.WaitGroup
}

// NewEngine creates an engine over backend and store.
func NewEngine(backend Backend, store *session.Store, opts ...Option) *Engine {
	e := &Engine{
		backend:       backend,
		store:         store,
		toasts:        notify.NewManager(),
		logger:        slog.New(slog.DiscardHandler),
		titleMaxRunes: DefaultTitleMaxRunes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's session store.
func (e *Engine) Store() *session.Store {
	return e.store
}

// Notifications returns the engine's notification manager.
func (e *Engine) Notifications() *notify.Manager {
	return e.toasts
}

// Wait blocks until background title updates have finished.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// fail logs err, raises a notification and returns err unchanged.
func (e *Engine) fail(action string, err error) error {
	e.logger.Error(action+" failed", "error", err)
	e.toasts.Error(action + " failed: " + UserMessage(err))
	return err
}

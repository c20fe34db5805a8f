// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/notify"
	"github.com/jeranaias/docchat/internal/session"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

type sentMessage struct {
	ChatID  int64
	Content string
	FileIDs []int64
}

// fakeBackend is an in-memory backend. Replies are served from replies,
// keyed by chat ID.
type fakeBackend struct {
	mu sync.Mutex

	chats     []model.Chat
	messages  map[int64][]model.Message
	chatFiles map[int64][]int64
	library   []model.File
	nextID    int64

	replies map[int64]func() io.ReadCloser
	sent    []sentMessage
	titles  []string
	calls   []string

	// errs fails the named method.
	errs map[string]error
	// onListMessages, when set, replaces ListMessages.
	onListMessages func(ctx context.Context, chatID int64) ([]model.Message, error)
}

func newFakeBackend(chats ...model.Chat) *fakeBackend {
	return &fakeBackend{
		chats:     chats,
		messages:  make(map[int64][]model.Message),
		chatFiles: make(map[int64][]int64),
		nextID:    100,
		replies:   make(map[int64]func() io.ReadCloser),
		errs:      make(map[string]error),
	}
}

func (b *fakeBackend) call(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, name)
	return b.errs[name]
}

func (b *fakeBackend) setErr(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[name] = err
}

func (b *fakeBackend) called(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (b *fakeBackend) reply(chatID int64, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[chatID] = func() io.ReadCloser { return io.NopCloser(strings.NewReader(body)) }
}

func (b *fakeBackend) fileByID(id int64) (model.File, bool) {
	for _, f := range b.library {
		if f.ID == id {
			return f, true
		}
	}
	return model.File{}, false
}

func (b *fakeBackend) ListChats(ctx context.Context) ([]model.Chat, error) {
	if err := b.call("ListChats"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.chats), nil
}

func (b *fakeBackend) CreateChat(ctx context.Context, title string) (model.Chat, error) {
	if err := b.call("CreateChat"); err != nil {
		return model.Chat{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	c := model.Chat{ID: b.nextID, Title: title}
	b.chats = append([]model.Chat{c}, b.chats...)
	return c, nil
}

func (b *fakeBackend) UpdateChatTitle(ctx context.Context, chatID int64, title string) (model.Chat, error) {
	if err := b.call("UpdateChatTitle"); err != nil {
		return model.Chat{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.titles = append(b.titles, title)
	for i := range b.chats {
		if b.chats[i].ID == chatID {
			b.chats[i].Title = title
			return b.chats[i], nil
		}
	}
	return model.Chat{}, fmt.Errorf("chat %d not found", chatID)
}

func (b *fakeBackend) ListMessages(ctx context.Context, chatID int64) ([]model.Message, error) {
	if err := b.call("ListMessages"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	hook := b.onListMessages
	msgs := slices.Clone(b.messages[chatID])
	b.mu.Unlock()
	if hook != nil {
		return hook(ctx, chatID)
	}
	return msgs, nil
}

func (b *fakeBackend) SendMessage(ctx context.Context, chatID int64, content string, fileIDs []int64) (io.ReadCloser, error) {
	if err := b.call("SendMessage"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMessage{ChatID: chatID, Content: content, FileIDs: fileIDs})
	if r, ok := b.replies[chatID]; ok {
		return r(), nil
	}
	return io.NopCloser(strings.NewReader(frames(`{"done": true}`))), nil
}

func (b *fakeBackend) ListChatFiles(ctx context.Context, chatID int64) ([]model.File, error) {
	if err := b.call("ListChatFiles"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	files := []model.File{}
	for _, id := range b.chatFiles[chatID] {
		if f, ok := b.fileByID(id); ok {
			files = append(files, f)
		}
	}
	return files, nil
}

func (b *fakeBackend) AttachFiles(ctx context.Context, chatID int64, fileIDs []int64) error {
	if err := b.call("AttachFiles"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range fileIDs {
		if !slices.Contains(b.chatFiles[chatID], id) {
			b.chatFiles[chatID] = append(b.chatFiles[chatID], id)
		}
	}
	return nil
}

func (b *fakeBackend) DetachFile(ctx context.Context, chatID, fileID int64) error {
	if err := b.call("DetachFile"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatFiles[chatID] = slices.DeleteFunc(b.chatFiles[chatID], func(id int64) bool { return id == fileID })
	return nil
}

func (b *fakeBackend) AttachToLatestChat(ctx context.Context, fileIDs []int64) (model.Chat, error) {
	if err := b.call("AttachToLatestChat"); err != nil {
		return model.Chat{}, err
	}
	b.mu.Lock()
	if len(b.chats) == 0 {
		b.mu.Unlock()
		return model.Chat{}, fmt.Errorf("no chats")
	}
	latest := b.chats[0]
	b.mu.Unlock()
	return latest, b.AttachFiles(ctx, latest.ID, fileIDs)
}

func (b *fakeBackend) ListFiles(ctx context.Context) ([]model.File, error) {
	if err := b.call("ListFiles"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.File{}, b.library...), nil
}

func (b *fakeBackend) UploadFile(ctx context.Context, name string, r io.Reader) (model.File, error) {
	if err := b.call("UploadFile"); err != nil {
		return model.File{}, err
	}
	if _, err := io.ReadAll(r); err != nil {
		return model.File{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	f := model.File{ID: b.nextID, Name: name, StorageKey: fmt.Sprintf("uploads/%d", b.nextID)}
	b.library = append(b.library, f)
	return f, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// frames renders payloads as a reply body.
func frames(payloads ...string) string {
	var sb strings.Builder
	for _, p := range payloads {
		sb.WriteString("data: ")
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func newTestEngine(t *testing.T, b *fakeBackend) *Engine {
	t.Helper()
	e := NewEngine(b, session.NewStore(), WithNotifier(notify.NewManager()))
	t.Cleanup(e.Wait)
	return e
}

// openChat initializes the engine and selects chatID.
func openChat(t *testing.T, e *Engine, chatID int64) {
	t.Helper()
	require.NoError(t, e.Initialize(context.Background(), chatID))
	require.Equal(t, chatID, e.Store().SelectedChatID())
}

func toastMessages(e *Engine) []string {
	var out []string
	for _, t := range e.Notifications().Active() {
		out = append(out, t.Message)
	}
	return out
}

func hasErrorToast(e *Engine) bool {
	for _, t := range e.Notifications().Active() {
		if t.Kind == notify.KindError {
			return true
		}
	}
	return false
}

func fileIDs(files []model.File) []int64 {
	ids := model.FileIDs(files)
	slices.Sort(ids)
	return ids
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/docchat/internal/api"
	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/session"
)

func threeChats() *fakeBackend {
	b := newFakeBackend(
		model.Chat{ID: 3, Title: "Newest"},
		model.Chat{ID: 2, Title: "Middle"},
		model.Chat{ID: 1, Title: "Oldest"},
	)
	b.library = []model.File{{ID: 10, Name: "report.pdf"}, {ID: 11, Name: "notes.txt"}}
	b.messages[2] = []model.Message{{ID: 20, Role: model.RoleUser, Content: "hi"}}
	b.chatFiles[2] = []int64{11}
	return b
}

func TestInitialize_SelectsPreferredChat(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)

	require.NoError(t, e.Initialize(context.Background(), 2))

	view := e.Store().View()
	assert.Equal(t, int64(2), view.Chat.ID)
	assert.Len(t, view.Chats, 3)
	assert.Len(t, view.Messages, 1)
	assert.Equal(t, []int64{11}, fileIDs(view.Attachments))
	assert.Equal(t, []int64{10, 11}, fileIDs(view.Library))
}

func TestInitialize_FallsBackToFirstChat(t *testing.T) {
	e := newTestEngine(t, threeChats())

	require.NoError(t, e.Initialize(context.Background(), 999))
	assert.Equal(t, int64(3), e.Store().SelectedChatID())
}

func TestInitialize_NoChats(t *testing.T) {
	b := newFakeBackend()
	e := newTestEngine(t, b)

	require.NoError(t, e.Initialize(context.Background(), 0))
	assert.False(t, e.Store().View().HasChat)
	assert.Zero(t, b.called("ListMessages"))
}

func TestInitialize_FailureLeavesEmptyStore(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 2))

	b.setErr("ListChats", &api.TransportError{Op: "GET /chats", Err: errors.New("refused")})
	err := e.Initialize(context.Background(), 2)

	var terr *api.TransportError
	require.ErrorAs(t, err, &terr)
	view := e.Store().View()
	assert.Empty(t, view.Chats)
	assert.Empty(t, view.Library)
	assert.False(t, view.HasChat)
	assert.True(t, hasErrorToast(e))
}

func TestSelectChat_CommitsAsOneUpdate(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 3))

	var mu sync.Mutex
	var kinds []session.ChangeKind
	e.Store().Subscribe(func(c session.Change) {
		mu.Lock()
		kinds = append(kinds, c.Kind)
		mu.Unlock()
	})

	require.NoError(t, e.SelectChat(context.Background(), 2))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.ChangeKind{session.ChangeSelection, session.ChangeLoaded}, kinds)

	view := e.Store().View()
	assert.Equal(t, "Middle", view.Chat.Title)
	assert.Len(t, view.Messages, 1)
	assert.Equal(t, []int64{11}, fileIDs(view.Attachments))
}

func TestSelectChat_Unknown(t *testing.T) {
	e := newTestEngine(t, threeChats())
	require.NoError(t, e.Initialize(context.Background(), 3))

	err := e.SelectChat(context.Background(), 77)
	assert.ErrorIs(t, err, ErrUnknownChat)
	assert.Equal(t, int64(3), e.Store().SelectedChatID())
}

func TestSelectChat_FailureResetsChat(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 2))
	require.NotEmpty(t, e.Store().Messages(2))

	b.setErr("ListChatFiles", &api.StatusError{Op: "GET /chats/2/files", Status: 404, Message: "Chat not found"})
	err := e.SelectChat(context.Background(), 2)

	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
	view := e.Store().View()
	assert.Equal(t, int64(2), view.Chat.ID)
	assert.Empty(t, view.Messages, "no stale messages after a failed load")
	assert.Empty(t, view.Attachments)
	assert.Contains(t, toastMessages(e)[0], "Chat not found")
}

func TestSelectChat_SupersededLoadDiscarded(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 3))

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	b.onListMessages = func(ctx context.Context, chatID int64) ([]model.Message, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return []model.Message{{ID: 1, Content: "stale"}}, nil
		}
		return []model.Message{{ID: 2, Content: "fresh"}}, nil
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.SelectChat(context.Background(), 2) }()
	<-started

	require.NoError(t, e.SelectChat(context.Background(), 2))
	close(release)
	require.NoError(t, <-firstDone)

	msgs := e.Store().Messages(2)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Content)
}

func TestSelectChat_SupersededFailureIgnored(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 3))

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	b.onListMessages = func(ctx context.Context, chatID int64) ([]model.Message, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return nil, &api.TransportError{Op: "GET /chats/2/messages", Err: errors.New("timeout")}
		}
		return []model.Message{{ID: 2, Content: "fresh"}}, nil
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- e.SelectChat(context.Background(), 2) }()
	<-started

	require.NoError(t, e.SelectChat(context.Background(), 2))
	close(release)
	assert.NoError(t, <-firstDone)

	assert.Len(t, e.Store().Messages(2), 1, "stale failure does not wipe the newer load")
	assert.False(t, hasErrorToast(e))
}

func TestSelectChat_KeepsInFlightSend(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 1))

	// Simulate a reload racing a send: the server does not know the
	// messages yet.
	require.True(t, e.Store().BeginSend(1))
	e.Store().AppendMessage(1, model.NewProvisionalMessage(1, "question", nil))

	require.NoError(t, e.SelectChat(context.Background(), 1))
	msgs := e.Store().Messages(1)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Provisional)
}

func TestSelectChat_FailureDuringSendKeepsReply(t *testing.T) {
	b := threeChats()
	pr, pw := io.Pipe()
	b.replies[1] = func() io.ReadCloser { return pr }
	e := newTestEngine(t, b)
	openChat(t, e, 1)

	done := make(chan error, 1)
	go func() {
		_, err := e.Send(context.Background(), "Hello")
		done <- err
	}()

	_, err := io.WriteString(pw, frames(`{"message_id": 7, "content": "Hi"}`))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(e.Store().Messages(1)) == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Reloading the chat fails while its reply is still streaming.
	b.setErr("ListMessages", &api.TransportError{Op: "GET /chats/1/messages", Err: errors.New("connection reset")})
	require.Error(t, e.SelectChat(context.Background(), 1))

	_, err = io.WriteString(pw, frames(`{"content": " there"}`, `{"done": true}`))
	require.NoError(t, err)
	require.NoError(t, pw.Close())
	require.NoError(t, <-done)
	e.Wait()

	msgs := e.Store().Messages(1)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.False(t, msgs[1].Streaming)
}

func TestCreateChat(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 2))

	chat, err := e.CreateChat(context.Background())
	require.NoError(t, err)

	view := e.Store().View()
	assert.Equal(t, chat.ID, view.Chat.ID)
	assert.Equal(t, model.DefaultTitle, view.Chat.Title)
	assert.Equal(t, chat.ID, view.Chats[0].ID, "new chat listed first")
	assert.Empty(t, view.Messages)
	assert.Empty(t, view.Attachments)
	assert.Len(t, view.Library, 2, "library kept")
}

func TestRenameChat(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 2))

	require.NoError(t, e.RenameChat(context.Background(), 1, "  Archive  "))
	chat, _ := e.Store().Chat(1)
	assert.Equal(t, "Archive", chat.Title)

	var verr *ValidationError
	assert.ErrorAs(t, e.RenameChat(context.Background(), 1, " "), &verr)
	assert.ErrorIs(t, e.RenameChat(context.Background(), 99, "x"), ErrUnknownChat)
}

func TestRenameChat_Forbidden(t *testing.T) {
	b := threeChats()
	b.setErr("UpdateChatTitle", &api.AuthError{Op: "PUT /chats/1/title", Status: 403, Forbidden: true, Message: "not owner"})
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 2))

	err := e.RenameChat(context.Background(), 1, "Mine")
	require.Error(t, err)
	assert.Contains(t, toastMessages(e)[0], "permission")
	chat, _ := e.Store().Chat(1)
	assert.Equal(t, "Oldest", chat.Title)
}

func TestRefreshChats(t *testing.T) {
	b := threeChats()
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 2))

	b.mu.Lock()
	b.chats = append([]model.Chat{{ID: 4, Title: "Elsewhere"}}, b.chats...)
	b.mu.Unlock()

	require.NoError(t, e.RefreshChats(context.Background()))
	assert.Len(t, e.Store().Chats(), 4)
	assert.Equal(t, int64(2), e.Store().SelectedChatID())
}

func TestLogout_WaitsAndClears(t *testing.T) {
	b := threeChats()
	b.reply(1, frames(`{"message_id": 30, "content": "Answer"}`, `{"done": true}`))
	b.chats[2].Title = model.DefaultTitle
	e := newTestEngine(t, b)
	require.NoError(t, e.Initialize(context.Background(), 1))

	_, err := e.Send(context.Background(), "Q")
	require.NoError(t, err)
	id := e.Store().Status().SessionID

	e.Logout()

	assert.Equal(t, 1, b.called("UpdateChatTitle"), "title update finished before teardown")
	assert.Empty(t, e.Store().Chats())
	assert.Empty(t, e.Notifications().Active())
	assert.NotEqual(t, id, e.Store().Status().SessionID)
}

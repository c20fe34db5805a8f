// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/docchat/internal/model"
)

func newTestStore(chatIDs ...int64) *Store {
	s := NewStore()
	chats := make([]model.Chat, 0, len(chatIDs))
	for _, id := range chatIDs {
		chats = append(chats, model.Chat{ID: id, Title: model.DefaultTitle})
	}
	s.SetChats(chats)
	return s
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

// =============================================================================
// STORE CREATION TESTS
// =============================================================================

func TestNewStore(t *testing.T) {
	s := NewStore()

	st := s.Status()
	assert.True(t, strings.HasPrefix(st.SessionID, "sess_"), "session ID %q", st.SessionID)
	assert.False(t, st.StartTime.IsZero())
	assert.Zero(t, s.SelectedChatID())
	assert.Empty(t, s.Chats())
	assert.Empty(t, s.Library())

	v := s.View()
	assert.False(t, v.HasChat)
	assert.Empty(t, v.Messages)
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(1, 2)
	s.Select(1)
	s.AppendMessage(1, model.Message{ID: 1, Content: "x"})
	s.AddToLibrary(model.File{ID: 9})
	require.True(t, s.Attach(1, 9))
	require.True(t, s.BeginSend(1))
	before := s.Status().SessionID

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })
	s.Clear()

	assert.Empty(t, s.Chats())
	assert.Zero(t, s.SelectedChatID())
	assert.Empty(t, s.Messages(1))
	assert.Empty(t, s.Attachments(1))
	assert.Empty(t, s.Library())
	assert.False(t, s.IsSending(1))
	assert.NotEqual(t, before, s.Status().SessionID)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeReset, changes[0].Kind)

	// Writes for chats from the torn-down session are refused.
	assert.False(t, s.AppendMessage(1, model.Message{Content: "late"}))
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestStore_PrependChat(t *testing.T) {
	s := newTestStore(1, 2)
	s.PrependChat(model.Chat{ID: 3, Title: "new"})
	s.PrependChat(model.Chat{ID: 1, Title: "moved"})

	var ids []int64
	for _, c := range s.Chats() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []int64{1, 3, 2}, ids)

	c, ok := s.Chat(1)
	require.True(t, ok)
	assert.Equal(t, "moved", c.Title)
}

func TestStore_SetChatTitle(t *testing.T) {
	s := newTestStore(42)
	assert.True(t, s.SetChatTitle(42, "Hi there"))
	assert.False(t, s.SetChatTitle(7, "nope"))

	c, _ := s.Chat(42)
	assert.Equal(t, "Hi there", c.Title)
}

func TestStore_ChatsReturnsCopy(t *testing.T) {
	s := newTestStore(1)
	chats := s.Chats()
	chats[0].Title = "mutated"

	c, _ := s.Chat(1)
	assert.Equal(t, model.DefaultTitle, c.Title)
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestStore_AppendAndStream(t *testing.T) {
	s := newTestStore(42)

	user := model.NewProvisionalMessage(0, "Hello", nil)
	require.True(t, s.AppendMessage(42, user))
	require.True(t, s.AppendMessage(42, model.NewAssistantMessage(42, 7, "Hi")))
	require.True(t, s.AppendContent(42, 7, " there"))
	require.True(t, s.FinalizeMessage(42, 7))

	msgs := s.Messages(42)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(42), msgs[0].ChatID, "AppendMessage keys by chat ID")
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.False(t, msgs[1].Streaming)

	assert.False(t, s.AppendContent(42, 99, "x"), "unknown message")
	assert.False(t, s.AppendContent(42, 0, "x"), "provisional messages have no server ID")
}

func TestStore_WritesKeyedByChatNotSelection(t *testing.T) {
	s := newTestStore(1, 2)
	s.Select(1)
	s.AppendMessage(1, model.NewAssistantMessage(1, 5, "a"))

	s.Select(2)
	s.AppendContent(1, 5, "b")

	v := s.View()
	assert.Equal(t, int64(2), v.Chat.ID)
	assert.Empty(t, v.Messages)
	assert.Equal(t, []string{"ab"}, contents(s.Messages(1)))
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestStore_CommitChatLoad(t *testing.T) {
	s := newTestStore(5)
	s.Select(5)

	ticket := s.BeginLoad(5)
	ok := s.CommitChatLoad(ticket, ChatLoad{
		Messages:    []model.Message{{ID: 1, Role: model.RoleUser, Content: "q"}, {ID: 2, Role: model.RoleAssistant, Content: "a"}},
		Attachments: []model.File{{ID: 10, Name: "a.pdf"}},
		Library:     []model.File{{ID: 10, Name: "a.pdf"}, {ID: 11, Name: "b.pdf"}},
	})
	require.True(t, ok)

	v := s.View()
	assert.Equal(t, []string{"q", "a"}, contents(v.Messages))
	require.Len(t, v.Attachments, 1)
	assert.Equal(t, "a.pdf", v.Attachments[0].Name)
	assert.Len(t, v.Library, 2)
}

func TestStore_SupersededLoadDiscarded(t *testing.T) {
	s := newTestStore(5)

	first := s.BeginLoad(5)
	second := s.BeginLoad(5)

	require.True(t, s.CommitChatLoad(second, ChatLoad{Messages: []model.Message{{ID: 2, Content: "new"}}}))
	assert.False(t, s.CommitChatLoad(first, ChatLoad{Messages: []model.Message{{ID: 1, Content: "old"}}}))

	assert.Equal(t, []string{"new"}, contents(s.Messages(5)))
}

func TestStore_LoadsForDifferentChatsIndependent(t *testing.T) {
	s := newTestStore(1, 2)

	a := s.BeginLoad(1)
	b := s.BeginLoad(2)
	assert.True(t, s.CommitChatLoad(b, ChatLoad{Messages: []model.Message{{ID: 2, Content: "b"}}}))
	assert.True(t, s.CommitChatLoad(a, ChatLoad{Messages: []model.Message{{ID: 1, Content: "a"}}}))
}

func TestStore_ClearInvalidatesTickets(t *testing.T) {
	s := newTestStore(1)
	ticket := s.BeginLoad(1)
	s.Clear()
	s.SetChats([]model.Chat{{ID: 1}})
	s.BeginLoad(1)

	assert.False(t, s.CommitChatLoad(ticket, ChatLoad{}))
}

func TestStore_ResetChat(t *testing.T) {
	s := newTestStore(3)
	s.AppendMessage(3, model.Message{ID: 1, Content: "stale"})
	s.SetAttachments(3, []model.File{{ID: 4}})
	failed := s.BeginLoad(3)

	require.True(t, s.ResetChat(failed))

	assert.Empty(t, s.Messages(3))
	assert.Empty(t, s.Attachments(3))
	assert.False(t, s.CommitChatLoad(failed, ChatLoad{Messages: []model.Message{{ID: 1}}}))
}

func TestStore_ResetChatIgnoresSupersededFailure(t *testing.T) {
	s := newTestStore(3)
	stale := s.BeginLoad(3)
	fresh := s.BeginLoad(3)
	require.True(t, s.CommitChatLoad(fresh, ChatLoad{Messages: []model.Message{{ID: 1, Content: "fresh"}}}))

	assert.False(t, s.ResetChat(stale))
	assert.Equal(t, []string{"fresh"}, contents(s.Messages(3)))
}

func TestStore_ResetChatKeepsInFlightMessages(t *testing.T) {
	s := newTestStore(1)
	require.True(t, s.BeginSend(1))
	s.AppendMessage(1, model.NewProvisionalMessage(1, "Hello", nil))
	s.AppendMessage(1, model.NewAssistantMessage(1, 7, "Hi"))
	s.SetAttachments(1, []model.File{{ID: 4}})

	failed := s.BeginLoad(1)
	require.True(t, s.ResetChat(failed))

	assert.Equal(t, []string{"Hello", "Hi"}, contents(s.Messages(1)))
	assert.Empty(t, s.Attachments(1))
	require.True(t, s.AppendContent(1, 7, " there"))
	assert.Equal(t, "Hi there", s.Messages(1)[1].Content)
}

func TestStore_ResetChatAfterSendEndedKeepsReply(t *testing.T) {
	s := newTestStore(1)
	require.True(t, s.BeginSend(1))
	s.AppendMessage(1, model.NewProvisionalMessage(1, "Hello", nil))
	s.AppendMessage(1, model.NewAssistantMessage(1, 7, "Hi"))

	failed := s.BeginLoad(1)
	s.FinalizeMessage(1, 7)
	s.EndSend(1)

	require.True(t, s.ResetChat(failed))
	assert.Equal(t, []string{"Hello", "Hi"}, contents(s.Messages(1)))
}

func TestStore_CommitKeepsInFlightMessages(t *testing.T) {
	s := newTestStore(42)
	require.True(t, s.BeginSend(42))

	s.AppendMessage(42, model.Message{ID: 1, Role: model.RoleUser, Content: "earlier"})
	s.AppendMessage(42, model.NewProvisionalMessage(42, "Hello", nil))
	s.AppendMessage(42, model.NewAssistantMessage(42, 7, "Hi th"))

	// The server has the user message but only part of the reply.
	ticket := s.BeginLoad(42)
	require.True(t, s.CommitChatLoad(ticket, ChatLoad{Messages: []model.Message{
		{ID: 1, Role: model.RoleUser, Content: "earlier"},
		{ID: 6, Role: model.RoleUser, Content: "Hello"},
		{ID: 7, Role: model.RoleAssistant, Content: "Hi"},
	}}))

	msgs := s.Messages(42)
	assert.Equal(t, []string{"earlier", "Hello", "Hi th"}, contents(msgs))
	assert.Equal(t, int64(6), msgs[1].ID, "provisional replaced by the confirmed message")
	assert.False(t, msgs[1].Provisional)

	// Streaming continues on the merged message.
	require.True(t, s.AppendContent(42, 7, "ere"))
	assert.Equal(t, "Hi there", s.Messages(42)[2].Content)
}

func TestStore_CommitKeepsUnconfirmedProvisional(t *testing.T) {
	s := newTestStore(42)
	require.True(t, s.BeginSend(42))
	s.AppendMessage(42, model.NewProvisionalMessage(42, "Hello", nil))

	ticket := s.BeginLoad(42)
	require.True(t, s.CommitChatLoad(ticket, ChatLoad{Messages: []model.Message{
		{ID: 1, Role: model.RoleUser, Content: "Hello"}, // an older, identical message
		{ID: 2, Role: model.RoleAssistant, Content: "Hey"},
	}}))

	// The older "Hello" is claimed by the provisional message, so nothing
	// is duplicated even though its server copy predates the send.
	assert.Equal(t, []string{"Hello", "Hey"}, contents(s.Messages(42)))
}

func TestStore_CommitAppendsMissingInFlightMessages(t *testing.T) {
	s := newTestStore(42)
	require.True(t, s.BeginSend(42))
	s.AppendMessage(42, model.NewProvisionalMessage(42, "Hello", nil))
	s.AppendMessage(42, model.NewAssistantMessage(42, 7, "Hi"))

	ticket := s.BeginLoad(42)
	require.True(t, s.CommitChatLoad(ticket, ChatLoad{Messages: []model.Message{
		{ID: 1, Role: model.RoleUser, Content: "before"},
	}}))

	msgs := s.Messages(42)
	assert.Equal(t, []string{"before", "Hello", "Hi"}, contents(msgs))
	assert.True(t, msgs[1].Provisional)
	assert.True(t, msgs[2].Streaming)
}

func TestStore_CommitAfterSendEndedKeepsLocal(t *testing.T) {
	s := newTestStore(42)
	require.True(t, s.BeginSend(42))
	s.AppendMessage(42, model.NewProvisionalMessage(42, "Hello", nil))
	s.AppendMessage(42, model.NewAssistantMessage(42, 7, "Hi"))

	// Load starts during the send, which then completes before the commit.
	ticket := s.BeginLoad(42)
	s.FinalizeMessage(42, 7)
	s.EndSend(42)

	require.True(t, s.CommitChatLoad(ticket, ChatLoad{}))
	assert.Equal(t, []string{"Hello", "Hi"}, contents(s.Messages(42)))
}

func TestStore_CommitWithoutSendReplaces(t *testing.T) {
	s := newTestStore(42)
	s.AppendMessage(42, model.NewProvisionalMessage(42, "failed send", nil))

	ticket := s.BeginLoad(42)
	require.True(t, s.CommitChatLoad(ticket, ChatLoad{Messages: []model.Message{{ID: 1, Content: "server"}}}))
	assert.Equal(t, []string{"server"}, contents(s.Messages(42)))
}

// =============================================================================
// FILE TESTS
// =============================================================================

func TestStore_LibraryAndAttachments(t *testing.T) {
	s := newTestStore(5)
	s.SetLibrary([]model.File{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}})
	s.AddToLibrary(model.File{ID: 3, Name: "c"})
	s.AddToLibrary(model.File{ID: 3, Name: "c"})

	assert.Len(t, s.Library(), 3)

	assert.True(t, s.Attach(5, 3))
	assert.False(t, s.Attach(5, 3), "already attached")
	assert.False(t, s.Attach(5, 99), "unknown file")

	att := s.Attachments(5)
	require.Len(t, att, 1)
	assert.Equal(t, "c", att[0].Name)

	assert.True(t, s.Detach(5, 3))
	assert.False(t, s.Detach(5, 3))
	assert.Empty(t, s.Attachments(5))
	assert.Len(t, s.Library(), 3, "detach never removes from the library")
}

func TestStore_AttachmentSetFollowsLastOperation(t *testing.T) {
	s := newTestStore(1)
	s.SetLibrary([]model.File{{ID: 1}, {ID: 2}, {ID: 3}})

	ops := []struct {
		attach bool
		file   int64
	}{
		{true, 1}, {true, 2}, {false, 1}, {true, 3}, {true, 1}, {false, 2}, {false, 3}, {true, 3},
	}
	want := map[int64]bool{}
	for _, op := range ops {
		if op.attach {
			s.Attach(1, op.file)
		} else {
			s.Detach(1, op.file)
		}
		want[op.file] = op.attach
	}

	got := map[int64]bool{}
	for _, f := range s.Attachments(1) {
		got[f.ID] = true
	}
	for id, attached := range want {
		assert.Equal(t, attached, got[id], "file %d", id)
	}
}

func TestStore_SetAttachmentsIndexesFiles(t *testing.T) {
	s := newTestStore(1)
	s.SetAttachments(1, []model.File{{ID: 8, Name: "only-in-chat"}, {ID: 8, Name: "only-in-chat"}})

	att := s.Attachments(1)
	require.Len(t, att, 1)
	assert.Equal(t, "only-in-chat", att[0].Name)
	assert.Empty(t, s.Library())
}

// =============================================================================
// SEND STATE TESTS
// =============================================================================

func TestStore_SetFiles(t *testing.T) {
	s := newTestStore(1, 2)
	s.SetLibrary([]model.File{{ID: 10}})

	var kinds []ChangeKind
	s.Subscribe(func(c Change) { kinds = append(kinds, c.Kind) })

	s.SetFiles([]model.File{{ID: 10}, {ID: 11}}, map[int64][]model.File{
		1: {{ID: 11}},
		2: nil,
	})

	assert.Equal(t, []int64{10, 11}, model.FileIDs(s.Library()))
	assert.Equal(t, []int64{11}, model.FileIDs(s.Attachments(1)))
	assert.Empty(t, s.Attachments(2))
	assert.Len(t, kinds, 3)

	s.SetFiles(nil, map[int64][]model.File{2: {{ID: 10}}})
	assert.Len(t, s.Library(), 2, "nil library leaves it unchanged")
	assert.Equal(t, []int64{10}, model.FileIDs(s.Attachments(2)))
}

func TestStore_SendState(t *testing.T) {
	s := newTestStore(1, 2)

	assert.True(t, s.BeginSend(1))
	assert.False(t, s.BeginSend(1), "one send per chat")
	assert.True(t, s.BeginSend(2), "chats are independent")
	assert.Equal(t, 2, s.Status().SendsInFlight)

	s.EndSend(1)
	assert.False(t, s.IsSending(1))
	assert.True(t, s.IsSending(2))
	assert.True(t, s.BeginSend(1))
}

// =============================================================================
// SUBSCRIPTION TESTS
// =============================================================================

func TestStore_Subscribe(t *testing.T) {
	s := newTestStore(1)

	var got []Change
	unsubscribe := s.Subscribe(func(c Change) {
		// Callbacks run outside the lock.
		_ = s.View()
		got = append(got, c)
	})

	s.AppendMessage(1, model.NewAssistantMessage(1, 3, ""))
	s.AppendContent(1, 3, "hey")
	unsubscribe()
	s.FinalizeMessage(1, 3)

	require.Len(t, got, 2)
	assert.Equal(t, ChangeMessages, got[0].Kind)
	assert.Equal(t, Change{Kind: ChangeContent, ChatID: 1, MessageID: 3, Delta: "hey"}, got[1])
}

func TestChangeKind_String(t *testing.T) {
	assert.Equal(t, "content", ChangeContent.String())
	assert.Equal(t, "sending", ChangeSending.String())
	assert.Equal(t, "change(99)", ChangeKind(99).String())
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

// TestStore_ConcurrentAccess exercises the store from many goroutines.
//
// Run with: go test -race -run TestStore_ConcurrentAccess
func TestStore_ConcurrentAccess(t *testing.T) {
	s := newTestStore(1, 2)
	s.AppendMessage(1, model.NewAssistantMessage(1, 1, ""))
	s.AppendMessage(2, model.NewAssistantMessage(2, 2, ""))
	s.Subscribe(func(Change) {})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			s.AppendContent(1, 1, "a")
		}()
		go func() {
			defer wg.Done()
			s.AppendContent(2, 2, "b")
		}()
		go func(i int) {
			defer wg.Done()
			s.Select(int64(i%2 + 1))
			_ = s.View()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, strings.Repeat("a", 50), s.Messages(1)[0].Content)
	assert.Equal(t, strings.Repeat("b", 50), s.Messages(2)[0].Content)
}

// =============================================================================
// FORMAT TESTS
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatDuration(tc.d))
	}
}

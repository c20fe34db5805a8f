// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/docchat/internal/model"
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind identifies what part of the store changed.
type ChangeKind int

const (
	ChangeReset       ChangeKind = iota // store cleared
	ChangeChats                         // chat list or a chat's metadata
	ChangeSelection                     // selected chat
	ChangeMessages                      // message appended to a chat
	ChangeContent                       // streaming content appended
	ChangeFinalized                     // assistant message finished streaming
	ChangeLoaded                        // chat load committed or reset
	ChangeAttachments                   // a chat's attachment set
	ChangeLibrary                       // the file library
	ChangeSending                       // a chat's send state
)

var changeKindNames = [...]string{
	"reset", "chats", "selection", "messages", "content",
	"finalized", "loaded", "attachments", "library", "sending",
}

// String returns the name of the change kind.
func (k ChangeKind) String() string {
	if k >= 0 && int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return "change(" + strconv.Itoa(int(k)) + ")"
}

// Change describes one committed mutation. ChatID is the chat the mutation
// was keyed by, which is not necessarily the selected chat.
type Change struct {
	Kind      ChangeKind
	ChatID    int64
	MessageID int64
	// Delta is the appended text for ChangeContent.
	Delta string
}

type subscriber struct {
	id int
	fn func(Change)
}

// =============================================================================
// STORE
// =============================================================================

// Store holds all session state. The zero value is not usable; call
// NewStore.
type Store struct {
	mu sync.Mutex

	// Session tracking
	sessionID string
	startTime time.Time

	chats    []model.Chat
	selected int64

	messages    map[int64][]model.Message
	attachments map[int64][]int64

	// files indexes every file seen; library is the ordered set of file
	// IDs owned by the user.
	files   map[int64]model.File
	library []int64

	sending   map[int64]bool
	sendEpoch map[int64]uint64
	loadGen   map[int64]uint64
	// genSeq is never reset so tickets issued before Clear stay stale.
	genSeq uint64

	subs    []subscriber
	nextSub int
}

// NewStore creates an empty store with a fresh session ID.
func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

// reset restores the initial state. Caller must hold mu (or own s).
func (s *Store) reset() {
	s.sessionID = generateSessionID()
	s.startTime = time.Now()
	s.chats = nil
	s.selected = 0
	s.messages = make(map[int64][]model.Message)
	s.attachments = make(map[int64][]int64)
	s.files = make(map[int64]model.File)
	s.library = nil
	s.sending = make(map[int64]bool)
	s.sendEpoch = make(map[int64]uint64)
	s.loadGen = make(map[int64]uint64)
}

// Clear tears the session down. Subscribers stay registered.
func (s *Store) Clear() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReset})
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn to be called after every committed mutation and
// returns a function that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// notify delivers changes outside the lock.
func (s *Store) notify(changes ...Change) {
	s.mu.Lock()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, c := range changes {
		for _, sub := range subs {
			sub.fn(c)
		}
	}
}

// =============================================================================
// CHATS
// =============================================================================

// SetChats replaces the ordered chat list.
func (s *Store) SetChats(chats []model.Chat) {
	s.mu.Lock()
	s.chats = cloneChats(chats)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeChats})
}

// PrependChat puts c at the head of the chat list, replacing any existing
// entry with the same ID.
func (s *Store) PrependChat(c model.Chat) {
	s.mu.Lock()
	chats := make([]model.Chat, 0, len(s.chats)+1)
	chats = append(chats, c.Clone())
	for _, existing := range s.chats {
		if existing.ID != c.ID {
			chats = append(chats, existing)
		}
	}
	s.chats = chats
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeChats, ChatID: c.ID})
}

// Chats returns a copy of the ordered chat list.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChats(s.chats)
}

// Chat returns the chat with the given ID.
func (s *Store) Chat(id int64) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.chatIndex(id); i >= 0 {
		return s.chats[i].Clone(), true
	}
	return model.Chat{}, false
}

// SetChatTitle updates a chat's title. Returns false if the chat is
// unknown.
func (s *Store) SetChatTitle(id int64, title string) bool {
	s.mu.Lock()
	i := s.chatIndex(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.chats[i].Title = title
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeChats, ChatID: id})
	return true
}

// Select makes id the selected chat. Zero clears the selection.
func (s *Store) Select(id int64) {
	s.mu.Lock()
	if s.selected == id {
		s.mu.Unlock()
		return
	}
	s.selected = id
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSelection, ChatID: id})
}

// SelectedChatID returns the selected chat, or zero if none.
func (s *Store) SelectedChatID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Store) chatIndex(id int64) int {
	for i := range s.chats {
		if s.chats[i].ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// MESSAGES
// =============================================================================

// AppendMessage appends msg to a chat's message sequence. Returns false if
// the chat is unknown, which happens once the session has been cleared.
func (s *Store) AppendMessage(chatID int64, msg model.Message) bool {
	s.mu.Lock()
	if s.chatIndex(chatID) < 0 {
		s.mu.Unlock()
		return false
	}
	msg = msg.Clone()
	msg.ChatID = chatID
	s.messages[chatID] = append(s.messages[chatID], msg)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, ChatID: chatID, MessageID: msg.ID})
	return true
}

// AppendContent appends delta to the message with the given server ID.
// Returns false if no such message exists in the chat.
func (s *Store) AppendContent(chatID, messageID int64, delta string) bool {
	s.mu.Lock()
	msg := s.findMessage(chatID, messageID)
	if msg == nil {
		s.mu.Unlock()
		return false
	}
	msg.Content += delta
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeContent, ChatID: chatID, MessageID: messageID, Delta: delta})
	return true
}

// FinalizeMessage marks a streaming message complete.
func (s *Store) FinalizeMessage(chatID, messageID int64) bool {
	s.mu.Lock()
	msg := s.findMessage(chatID, messageID)
	if msg == nil {
		s.mu.Unlock()
		return false
	}
	msg.Streaming = false
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeFinalized, ChatID: chatID, MessageID: messageID})
	return true
}

// Messages returns a copy of a chat's messages in append order.
func (s *Store) Messages(chatID int64) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages[chatID])
}

// findMessage searches from the end, where streaming messages live.
func (s *Store) findMessage(chatID, messageID int64) *model.Message {
	if messageID == 0 {
		return nil
	}
	msgs := s.messages[chatID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == messageID {
			return &msgs[i]
		}
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// LoadTicket tags one chat load. Only the most recent ticket for a chat
// may commit.
type LoadTicket struct {
	ChatID    int64
	gen       uint64
	sendEpoch uint64
}

// ChatLoad is the result of loading one chat.
type ChatLoad struct {
	Messages    []model.Message
	Attachments []model.File
	Library     []model.File
}

// BeginLoad issues a ticket for a new load of chatID, superseding any load
// of the same chat still in flight.
func (s *Store) BeginLoad(chatID int64) LoadTicket {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.genSeq++
	s.loadGen[chatID] = s.genSeq
	return LoadTicket{ChatID: chatID, gen: s.genSeq, sendEpoch: s.sendEpoch[chatID]}
}

// CommitChatLoad applies a load's messages, attachment set and library as
// one update. It returns false and changes nothing if the ticket was
// superseded or the chat is unknown.
//
// Local messages the server may not know about yet survive the commit when
// a send is in flight for the chat, or when one finished after the load
// began.
func (s *Store) CommitChatLoad(t LoadTicket, load ChatLoad) bool {
	s.mu.Lock()
	if s.loadGen[t.ChatID] != t.gen || s.chatIndex(t.ChatID) < 0 {
		s.mu.Unlock()
		return false
	}

	msgs := cloneMessages(load.Messages)
	for i := range msgs {
		msgs[i].ChatID = t.ChatID
	}
	if s.sending[t.ChatID] || s.sendEpoch[t.ChatID] != t.sendEpoch {
		msgs = mergeInFlight(msgs, s.messages[t.ChatID])
	}
	s.messages[t.ChatID] = msgs

	s.attachments[t.ChatID] = s.indexFiles(load.Attachments)
	if load.Library != nil {
		s.library = s.indexFiles(load.Library)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLoaded, ChatID: t.ChatID})
	return true
}

// ResetChat empties a chat's message and attachment slots after the load
// identified by t failed. A superseded ticket changes nothing and returns
// false, so a stale failure cannot wipe a newer load's result.
//
// While a send is in flight for the chat, or one finished after the load
// began, the local messages are kept instead so the reply keeps streaming
// into them.
func (s *Store) ResetChat(t LoadTicket) bool {
	s.mu.Lock()
	if s.loadGen[t.ChatID] != t.gen {
		s.mu.Unlock()
		return false
	}
	var kept []model.Message
	if s.sending[t.ChatID] || s.sendEpoch[t.ChatID] != t.sendEpoch {
		kept = mergeInFlight(nil, s.messages[t.ChatID])
	}
	if len(kept) > 0 {
		s.messages[t.ChatID] = kept
	} else {
		delete(s.messages, t.ChatID)
	}
	delete(s.attachments, t.ChatID)
	s.genSeq++
	s.loadGen[t.ChatID] = s.genSeq
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLoaded, ChatID: t.ChatID})
	return true
}

// mergeInFlight combines a server message list with the local one. Server
// messages win, except a streaming assistant message keeps its local
// content since later deltas are appended to it. Local messages the
// server does not have yet are appended in their local order.
func mergeInFlight(server, local []model.Message) []model.Message {
	claimed := make([]bool, len(server))
	var pending []model.Message

	for _, m := range local {
		if m.ID == 0 || m.Provisional {
			continue
		}
		i := indexByID(server, m.ID)
		if i < 0 {
			pending = append(pending, m)
			continue
		}
		claimed[i] = true
		if m.Streaming {
			server[i].Content = m.Content
			server[i].Streaming = true
		}
	}

	for _, m := range local {
		if !m.Provisional {
			continue
		}
		if i := lastUnclaimedUser(server, claimed, m.Content); i >= 0 {
			claimed[i] = true
			continue
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return server
	}

	// Restore local order among pending messages.
	out := server
	for _, m := range local {
		for _, p := range pending {
			if p.Matches(m) {
				out = append(out, m.Clone())
				break
			}
		}
	}
	return out
}

func indexByID(msgs []model.Message, id int64) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func lastUnclaimedUser(msgs []model.Message, claimed []bool, content string) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !claimed[i] && msgs[i].Role == model.RoleUser && msgs[i].Content == content {
			return i
		}
	}
	return -1
}

// =============================================================================
// FILES
// =============================================================================

// SetLibrary replaces the file library.
func (s *Store) SetLibrary(files []model.File) {
	s.mu.Lock()
	s.library = s.indexFiles(files)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLibrary})
}

// AddToLibrary appends a file to the library if it is not already there.
func (s *Store) AddToLibrary(f model.File) {
	s.mu.Lock()
	s.files[f.ID] = f
	if !containsID(s.library, f.ID) {
		s.library = append(s.library, f.ID)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLibrary})
}

// Library returns the user's files in library order.
func (s *Store) Library() []model.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(s.library)
}

// Attach adds a known file to a chat's attachment set. Returns false if the
// file has never been seen or is already attached.
func (s *Store) Attach(chatID, fileID int64) bool {
	s.mu.Lock()
	if _, ok := s.files[fileID]; !ok || containsID(s.attachments[chatID], fileID) {
		s.mu.Unlock()
		return false
	}
	s.attachments[chatID] = append(s.attachments[chatID], fileID)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAttachments, ChatID: chatID})
	return true
}

// Detach removes a file from a chat's attachment set.
func (s *Store) Detach(chatID, fileID int64) bool {
	s.mu.Lock()
	ids := s.attachments[chatID]
	i := indexOfID(ids, fileID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.attachments[chatID] = append(ids[:i:i], ids[i+1:]...)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAttachments, ChatID: chatID})
	return true
}

// SetAttachments replaces a chat's attachment set with the backend's view.
func (s *Store) SetAttachments(chatID int64, files []model.File) {
	s.mu.Lock()
	s.attachments[chatID] = s.indexFiles(files)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAttachments, ChatID: chatID})
}

// SetFiles replaces the library and the attachment sets of the given chats
// as one update, so readers never see the two views disagree. A nil
// library leaves the library unchanged.
func (s *Store) SetFiles(library []model.File, sets map[int64][]model.File) {
	s.mu.Lock()
	if library != nil {
		s.library = s.indexFiles(library)
	}
	changes := make([]Change, 0, len(sets)+1)
	for chatID, files := range sets {
		s.attachments[chatID] = s.indexFiles(files)
		changes = append(changes, Change{Kind: ChangeAttachments, ChatID: chatID})
	}
	s.mu.Unlock()

	if library != nil {
		changes = append(changes, Change{Kind: ChangeLibrary})
	}
	s.notify(changes...)
}

// Attachments resolves a chat's attachment set to files.
func (s *Store) Attachments(chatID int64) []model.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(s.attachments[chatID])
}

// indexFiles records files in the index and returns their IDs, deduplicated
// in order. Caller must hold mu.
func (s *Store) indexFiles(files []model.File) []int64 {
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		s.files[f.ID] = f
		if !containsID(ids, f.ID) {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// resolve maps IDs to indexed files. Caller must hold mu.
func (s *Store) resolve(ids []int64) []model.File {
	files := make([]model.File, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.files[id]; ok {
			files = append(files, f)
		}
	}
	return files
}

func indexOfID(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func containsID(ids []int64, id int64) bool {
	return indexOfID(ids, id) >= 0
}

// =============================================================================
// SENDING
// =============================================================================

// BeginSend marks a chat as having a send in flight. Returns false if one
// is already outstanding for that chat.
func (s *Store) BeginSend(chatID int64) bool {
	s.mu.Lock()
	if s.sending[chatID] {
		s.mu.Unlock()
		return false
	}
	s.sending[chatID] = true
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSending, ChatID: chatID})
	return true
}

// EndSend clears a chat's send state.
func (s *Store) EndSend(chatID int64) {
	s.mu.Lock()
	if !s.sending[chatID] {
		s.mu.Unlock()
		return
	}
	delete(s.sending, chatID)
	s.sendEpoch[chatID]++
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeSending, ChatID: chatID})
}

// IsSending reports whether a send is in flight for the chat.
func (s *Store) IsSending(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending[chatID]
}

// =============================================================================
// VIEW
// =============================================================================

// View is a consistent snapshot of the selected chat.
type View struct {
	Chats       []model.Chat
	Chat        model.Chat
	HasChat     bool
	Messages    []model.Message
	Attachments []model.File
	Library     []model.File
	Sending     bool
}

// View returns a snapshot of the selected chat taken under one lock.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Chats:   cloneChats(s.chats),
		Library: s.resolve(s.library),
	}
	if i := s.chatIndex(s.selected); i >= 0 {
		v.Chat = s.chats[i].Clone()
		v.HasChat = true
		v.Messages = cloneMessages(s.messages[s.selected])
		v.Attachments = s.resolve(s.attachments[s.selected])
		v.Sending = s.sending[s.selected]
	}
	return v
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status represents the current session status.
type Status struct {
	SessionID      string
	StartTime      time.Time
	Duration       time.Duration
	SelectedChatID int64
	ChatCount      int
	FileCount      int
	SendsInFlight  int
}

// Status returns the current session status.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		SessionID:      s.sessionID,
		StartTime:      s.startTime,
		Duration:       time.Since(s.startTime),
		SelectedChatID: s.selected,
		ChatCount:      len(s.chats),
		FileCount:      len(s.library),
		SendsInFlight:  len(s.sending),
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return strconv.Itoa(mins) + "m"
		}
		return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return strconv.Itoa(hours) + "h " + strconv.Itoa(mins) + "m"
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateSessionID creates a unique session ID.
func generateSessionID() string {
	return "sess_" + uuid.NewString()
}

func cloneChats(chats []model.Chat) []model.Chat {
	out := make([]model.Chat, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}
	return out
}

func cloneMessages(msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

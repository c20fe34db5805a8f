// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"log/slog"
	"strings"

	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/session"
	"github.com/jeranaias/docchat/internal/stream"
)

// Step is the transition an event caused.
type Step int

const (
	// StepIgnored means the event changed nothing.
	StepIgnored Step = iota
	// StepCreated means the assistant message was created.
	StepCreated
	// StepAppended means content was appended to the assistant message.
	StepAppended
	// StepDone means the reply finished normally.
	StepDone
	// StepFailed means the backend reported an error.
	StepFailed
)

// String returns the name of the step.
func (s Step) String() string {
	switch s {
	case StepCreated:
		return "created"
	case StepAppended:
		return "appended"
	case StepDone:
		return "done"
	case StepFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Accumulator folds the events of one send into the store. Every write is
// keyed by the target chat it was created for. An Accumulator is not safe
// for concurrent use; events must be applied in arrival order.
type Accumulator struct {
	store  *session.Store
	chatID int64
	logger *slog.Logger

	messageID int64
	content   strings.Builder
	finished  bool
}

// NewAccumulator creates an accumulator for a send targeting chatID.
func NewAccumulator(store *session.Store, chatID int64, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Accumulator{store: store, chatID: chatID, logger: logger}
}

// Apply applies one event. An error event returns a *StreamError; after
// it, or after a done event, every event is ignored.
func (a *Accumulator) Apply(ev stream.Event) (Step, error) {
	if a.finished {
		return StepIgnored, nil
	}

	if ev.IsError() {
		a.finish()
		return StepFailed, &StreamError{
			ChatID:    a.chatID,
			MessageID: a.messageID,
			Partial:   a.content.String(),
			Message:   ev.Error,
		}
	}

	step := StepIgnored
	switch {
	case a.messageID == 0 && ev.HasMessageID():
		a.messageID = ev.MessageID
		a.content.WriteString(ev.Content)
		if !a.store.AppendMessage(a.chatID, model.NewAssistantMessage(a.chatID, ev.MessageID, ev.Content)) {
			a.logger.Warn("target chat gone, reply not stored", "chat_id", a.chatID, "message_id", ev.MessageID)
		}
		step = StepCreated

	case a.messageID != 0 && ev.Content != "":
		if ev.HasMessageID() && ev.MessageID != a.messageID {
			a.logger.Warn("reply frame names another message", "chat_id", a.chatID,
				"message_id", a.messageID, "frame_message_id", ev.MessageID)
		}
		a.content.WriteString(ev.Content)
		a.store.AppendContent(a.chatID, a.messageID, ev.Content)
		step = StepAppended

	case a.messageID == 0 && ev.Content != "":
		a.logger.Debug("content before message id ignored", "chat_id", a.chatID, "bytes", len(ev.Content))
	}

	if ev.Done {
		a.finish()
		return StepDone, nil
	}
	return step, nil
}

// Finish closes the assistant message when the stream ends without a done
// event. It is a no-op once the reply has finished.
func (a *Accumulator) Finish() {
	if !a.finished {
		a.finish()
	}
}

func (a *Accumulator) finish() {
	a.finished = true
	if a.messageID != 0 {
		a.store.FinalizeMessage(a.chatID, a.messageID)
	}
}

// ChatID returns the target chat.
func (a *Accumulator) ChatID() int64 { return a.chatID }

// MessageID returns the assistant message ID, or zero before creation.
func (a *Accumulator) MessageID() int64 { return a.messageID }

// Content returns the assistant content accumulated so far.
func (a *Accumulator) Content() string { return a.content.String() }

// Finished reports whether a done or error event has been applied, or
// Finish was called.
func (a *Accumulator) Finished() bool { return a.finished }

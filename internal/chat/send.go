// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/docchat/internal/api"
	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/stream"
)

// SendResult describes a finished send.
type SendResult struct {
	ChatID    int64
	MessageID int64 // zero if the backend never created a reply
	Content   string

	// Done is true if the backend sent an explicit done event; false when
	// the stream simply ended.
	Done bool

	// DecodeErrors counts frames skipped because their payload was
	// malformed.
	DecodeErrors int
}

// Send posts content to the selected chat and applies the streamed reply.
//
// The user message is appended before any network call. The reply keeps
// updating the chat the send was issued for even if the user navigates
// elsewhere. Partial reply content is kept when the stream fails.
func (e *Engine) Send(ctx context.Context, content string) (SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return SendResult{}, e.fail("Send", &ValidationError{Field: "message", Message: "Message is empty"})
	}

	chatID := e.store.SelectedChatID()
	if chatID == 0 {
		return SendResult{}, e.fail("Send", ErrNoChatSelected)
	}
	if !e.store.BeginSend(chatID) {
		return SendResult{ChatID: chatID}, e.fail("Send", ErrSendInFlight)
	}
	defer e.store.EndSend(chatID)

	files := e.store.Attachments(chatID)
	e.store.AppendMessage(chatID, model.NewProvisionalMessage(chatID, content, files))

	logger := e.logger.With("chat_id", chatID)
	logger.Debug("sending message", "bytes", len(content), "files", len(files))

	body, err := e.backend.SendMessage(ctx, chatID, content, model.FileIDs(files))
	if err != nil {
		return SendResult{ChatID: chatID}, e.fail("Send", err)
	}
	defer body.Close()

	acc := NewAccumulator(e.store, chatID, logger)
	title := titleTracker{maxRunes: e.titleMaxRunes}

	res := SendResult{ChatID: chatID}
	frames := stream.NewReader(body)
	var sendErr error

	for !acc.Finished() {
		frame, err := frames.Next()
		if errors.Is(err, io.EOF) {
			if n := frames.Dropped(); n > 0 {
				logger.Warn("unterminated frame dropped at end of stream", "bytes", n)
			}
			break
		}
		if err != nil {
			sendErr = transportError(chatID, err)
			break
		}

		ev, err := stream.DecodeEvent(frame)
		if errors.Is(err, stream.ErrNotData) {
			continue
		}
		if err != nil {
			res.DecodeErrors++
			logger.Warn("skipping malformed frame", "error", err)
			continue
		}

		step, err := acc.Apply(ev)
		if err != nil {
			sendErr = err
			break
		}
		if step == StepDone {
			res.Done = true
		}
		if acc.MessageID() != 0 && !title.checked {
			title.arm(e.store, chatID)
		}
		if title.ready(acc.Content(), acc.Finished()) {
			e.issueTitle(ctx, chatID, acc.Content())
		}
	}
	acc.Finish()

	if sendErr == nil && title.ready(acc.Content(), true) {
		e.issueTitle(ctx, chatID, acc.Content())
	}

	res.MessageID = acc.MessageID()
	res.Content = acc.Content()
	if sendErr != nil {
		return res, e.fail("Send", sendErr)
	}
	logger.Debug("reply complete", "message_id", res.MessageID, "done", res.Done, "bytes", len(res.Content))
	return res, nil
}

// transportError classifies a failure while reading the reply body.
func transportError(chatID int64, err error) error {
	var terr *api.TransportError
	if errors.As(err, &terr) {
		return err
	}
	return &api.TransportError{Op: fmt.Sprintf("POST /chats/%d/messages", chatID), Err: err}
}

// issueTitle updates the chat title in the background. Failure leaves the
// default title in place and is not retried.
func (e *Engine) issueTitle(ctx context.Context, chatID int64, content string) {
	title := ProvisionalTitle(content, e.titleMaxRunes)
	if title == "" {
		return
	}

	ctx = context.WithoutCancel(ctx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		updated, err := e.backend.UpdateChatTitle(ctx, chatID, title)
		if err != nil {
			e.logger.Warn("provisional title update failed", "chat_id", chatID, "error", err)
			return
		}
		if updated.Title != "" {
			title = updated.Title
		}
		e.store.SetChatTitle(chatID, title)
	}()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single message command.
//
// Command: ask
// Short:   Send one message to the current chat and print the reply
//
// Examples:
//
//	docchat ask "What does the lease say about pets?"
//	docchat ask --new "Summarize the attached report"
//	echo "Summarize" | docchat ask --chat 12
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/chat"
)

// maxStdinMessage bounds a message read from a pipe.
const maxStdinMessage = 1 << 20

// replyEntry is the JSON form of a reply.
type replyEntry struct {
	ChatID       int64  `json:"chat_id"`
	MessageID    int64  `json:"message_id"`
	Content      string `json:"content"`
	Done         bool   `json:"done"`
	DecodeErrors int    `json:"decode_errors,omitempty"`
}

func (a *App) askCmd() *cobra.Command {
	var newChat bool
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Send one message and print the reply",
		Long: `Send one message to the current chat and print the reply as it streams.
Without arguments the message is read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if content == "" && !IsTerminal(a.in) {
				data, err := io.ReadAll(io.LimitReader(a.in, maxStdinMessage))
				if err != nil {
					return &CommandError{Command: "ask", Reason: "cannot read stdin", Err: err}
				}
				content = string(data)
			}

			ctx := cmd.Context()
			if newChat {
				if _, err := a.engine.CreateChat(ctx); err != nil {
					return err
				}
			}

			res, err := a.send(ctx, content)
			if a.jsonOutput && err == nil {
				return a.writeJSON("ask", replyEntry{
					ChatID:       res.ChatID,
					MessageID:    res.MessageID,
					Content:      res.Content,
					Done:         res.Done,
					DecodeErrors: res.DecodeErrors,
				})
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&newChat, "new", false, "start a new chat for this message")
	return cmd
}

// send sends content to the current chat, echoing the reply while it
// streams. An interrupt cancels the send; content received so far stays.
func (a *App) send(ctx context.Context, content string) (chat.SendResult, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if a.jsonOutput {
		return a.engine.Send(ctx, content)
	}

	unfollow := a.printer.Follow(a.engine.Store(), a.engine.Store().SelectedChatID())
	res, err := a.engine.Send(ctx, content)
	unfollow()

	a.printer.Reply(res.Content)
	if res.DecodeErrors > 0 {
		fmt.Fprintln(a.errOut, DimStyle.Render(fmt.Sprintf("(%d malformed frames skipped)", res.DecodeErrors)))
	}
	return res, err
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chats_cmd.go - Chat list and chat metadata commands.
//
// Commands:
//
//	docchat chats                 List chats, newest first
//	docchat new                   Create a chat and make it current
//	docchat rename <id> <title>   Rename a chat
//	docchat show [id]             Print a chat's transcript
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/model"
)

// chatEntry is the JSON form of a chat in listings.
type chatEntry struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Selected     bool      `json:"selected"`
}

func (a *App) chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "chats",
		Aliases: []string{"ls"},
		Short:   "List chats",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view := a.engine.Store().View()

			if a.jsonOutput {
				entries := make([]chatEntry, len(view.Chats))
				for i, c := range view.Chats {
					entries[i] = chatEntry{
						ID:           c.ID,
						Title:        c.GetTitle(),
						CreatedAt:    c.CreatedAt,
						MessageCount: c.MessageCount,
						Selected:     view.HasChat && c.ID == view.Chat.ID,
					}
				}
				return a.writeJSON("chats", entries)
			}

			if len(view.Chats) == 0 {
				fmt.Fprintln(a.out, DimStyle.Render("No chats yet. Start one with: docchat new"))
				return nil
			}
			for _, c := range view.Chats {
				fmt.Fprintln(a.out, formatChatLine(c, view.HasChat && c.ID == view.Chat.ID))
			}
			return nil
		},
	}
}

// formatChatLine renders one row of the chat list.
func formatChatLine(c model.Chat, selected bool) string {
	marker := "  "
	title := c.GetTitle()
	if selected {
		marker = HighlightStyle.Render("* ")
		title = HighlightStyle.Render(title)
	}
	id := DimStyle.Render(fmt.Sprintf("%6d", c.ID))
	when := ""
	if t := c.LastActivity(); !t.IsZero() {
		when = DimStyle.Render("  " + t.Local().Format("2006-01-02 15:04"))
	}
	return marker + id + "  " + title + when
}

func (a *App) newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a chat and make it current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.engine.CreateChat(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.writeJSON("new", chatEntry{ID: c.ID, Title: c.GetTitle(), CreatedAt: c.CreatedAt, Selected: true})
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("Created chat"), c.ID)
			return nil
		},
	}
}

func (a *App) renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chat-id> <title>",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("chat-id", args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := a.engine.RenameChat(cmd.Context(), id, title); err != nil {
				return err
			}
			c, _ := a.engine.Store().Chat(id)
			if a.jsonOutput {
				return a.writeJSON("rename", chatEntry{ID: c.ID, Title: c.GetTitle(), CreatedAt: c.CreatedAt})
			}
			fmt.Fprintln(a.out, SuccessStyle.Render("Renamed chat"), id, "to", c.GetTitle())
			return nil
		},
	}
}

func (a *App) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [chat-id]",
		Short: "Print a chat's transcript",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := parseID("chat-id", args[0])
				if err != nil {
					return err
				}
				if err := a.engine.SelectChat(cmd.Context(), id); err != nil {
					return err
				}
			}
			if _, err := a.requireChat(); err != nil {
				return err
			}

			view := a.engine.Store().View()
			if a.jsonOutput {
				return a.writeJSON("show", struct {
					Chat        model.Chat      `json:"chat"`
					Messages    []model.Message `json:"messages"`
					Attachments []model.File    `json:"attachments"`
				}{view.Chat, view.Messages, view.Attachments})
			}

			fmt.Fprintln(a.out, TitleStyle.Render(view.Chat.GetTitle()))
			fmt.Fprintln(a.out, separator(a.printer.Width()))
			if len(view.Messages) == 0 {
				fmt.Fprintln(a.out, DimStyle.Render("No messages yet."))
				return nil
			}
			a.printer.Transcript(view.Messages)
			return nil
		},
	}
}

// parseID parses a positive numeric identifier argument.
func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &UsageError{Arg: name, Reason: fmt.Sprintf("%q is not a valid ID", s)}
	}
	return id, nil
}

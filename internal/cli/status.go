// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - Session status display.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/session"
)

// statusInfo is the JSON form of the status command.
type statusInfo struct {
	Version     string `json:"version"`
	Backend     string `json:"backend"`
	SessionID   string `json:"session_id"`
	ChatID      int64  `json:"chat_id"`
	ChatTitle   string `json:"chat_title,omitempty"`
	Messages    int    `json:"messages"`
	Attachments int    `json:"attachments"`
	Chats       int    `json:"chats"`
	Files       int    `json:"files"`
	Uptime      string `json:"uptime"`
}

func (a *App) collectStatus() statusInfo {
	store := a.engine.Store()
	st := store.Status()
	view := store.View()

	info := statusInfo{
		Version:   Version,
		Backend:   a.cfg.API.BaseURL,
		SessionID: st.SessionID,
		ChatID:    st.SelectedChatID,
		Chats:     st.ChatCount,
		Files:     st.FileCount,
		Uptime:    session.FormatDuration(st.Duration),
	}
	if view.HasChat {
		info.ChatTitle = view.Chat.GetTitle()
		info.Messages = len(view.Messages)
		info.Attachments = len(view.Attachments)
	}
	return info
}

func (a *App) printStatus() {
	info := a.collectStatus()
	row := func(label, value string) {
		fmt.Fprintln(a.out, LabelStyle.Render(label)+ValueStyle.Render(value))
	}

	fmt.Fprintln(a.out, TitleStyle.Render("docchat status"))
	row("Version", info.Version)
	row("Backend", info.Backend)
	row("Session", info.SessionID)
	if info.ChatID != 0 {
		row("Chat", fmt.Sprintf("%d (%s)", info.ChatID, info.ChatTitle))
		row("Messages", fmt.Sprint(info.Messages))
		row("Attached files", fmt.Sprint(info.Attachments))
	} else {
		row("Chat", "none")
	}
	row("Chats", fmt.Sprint(info.Chats))
	row("Library files", fmt.Sprint(info.Files))
	row("Uptime", info.Uptime)
}

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"s"},
		Short:   "Show session status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonOutput {
				return a.writeJSON("status", a.collectStatus())
			}
			a.printStatus()
			return nil
		},
	}
}

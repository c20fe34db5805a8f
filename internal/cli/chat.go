// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for the docchat CLI.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Interactive Commands (during chat):
//
//	/help, /h           Show available commands
//	/chats              List chats
//	/open <id>          Switch to another chat
//	/new                Start a new chat
//	/rename <title>     Rename the current chat
//	/history            Show the current chat's messages
//	/reload             Reload the current chat from the backend
//	/files              List the file library
//	/upload <path>      Upload a file and attach it
//	/attach <file-id>   Attach a library file
//	/detach <file-id>   Remove a file from the chat
//	/status, /s         Show session status
//	/quit, /q           Exit chat
//	Ctrl+C              Cancel the reply being streamed
//	Ctrl+D              Exit chat
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/model"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one line of input per prompt.
type lineReader interface {
	ReadInput(prompt string) (string, error)
	Close() error
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI. History is kept in historyFile when set.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.loadHistory()
	return c
}

func (c *ChatCLI) loadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with arrow-key history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists history with owner-only permissions.
func (c *ChatCLI) saveHistory() error {
	if c.historyFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := c.line.WriteHistory(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	err := c.saveHistory()
	if cerr := c.line.Close(); err == nil {
		err = cerr
	}
	return err
}

// plainReader reads lines from a non-terminal input without prompting.
type plainReader struct {
	scanner *bufio.Scanner
}

func newPlainReader(in io.Reader) *plainReader {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 64*1024), maxStdinMessage)
	return &plainReader{scanner: s}
}

func (r *plainReader) ReadInput(prompt string) (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *plainReader) Close() error { return nil }

// historyPath returns the REPL history file, or "" if the config directory
// is unavailable.
func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chat_history")
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *App) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var input lineReader
			if IsTerminal(a.in) {
				input = NewChatCLI(historyPath())
			} else {
				input = newPlainReader(a.in)
			}
			defer input.Close()

			return a.repl(cmd.Context(), input)
		},
	}
}

// repl runs the read-send loop until /quit or end of input.
func (a *App) repl(ctx context.Context, input lineReader) error {
	a.printWelcome()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		a.errorShown.Store(false)

		line, err := input.ReadInput(a.prompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(a.out)
			return nil
		}
		if err != nil {
			return &CommandError{Command: "chat", Reason: "cannot read input", Err: err}
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			quit, err := a.runSlash(ctx, line)
			if quit {
				return nil
			}
			if err != nil {
				a.reportError(err)
			}
		default:
			// Failures are shown as notifications by the engine.
			_, _ = a.send(ctx, line)
		}
	}
}

func (a *App) prompt() string {
	title := "no chat"
	if view := a.engine.Store().View(); view.HasChat {
		title = view.Chat.GetTitle()
	}
	return PromptStyle.Render(title+" >") + " "
}

func (a *App) printWelcome() {
	fmt.Fprintln(a.out, TitleStyle.Render("docchat"), DimStyle.Render("type /help for commands, Ctrl+D to exit"))
	if view := a.engine.Store().View(); view.HasChat && len(view.Messages) > 0 {
		fmt.Fprintln(a.out, DimStyle.Render(fmt.Sprintf("%d earlier messages, /history to show them", len(view.Messages))))
	}
}

// reportError prints errors the engine has not already reported.
func (a *App) reportError(err error) {
	if a.errorShown.Load() {
		return
	}
	fmt.Fprintln(a.errOut, ErrorStyle.Render("Error:"), err)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const replHelp = `Commands:
  /chats              List chats
  /open <id>          Switch to another chat
  /new                Start a new chat
  /rename <title>     Rename the current chat
  /history            Show the current chat's messages
  /reload             Reload the current chat from the backend
  /files              List the file library
  /upload <path>      Upload a file and attach it
  /attach <file-id>   Attach a library file
  /detach <file-id>   Remove a file from the chat
  /status, /s         Show session status
  /quit, /q           Exit chat`

// runSlash executes one slash command. quit is set for /quit.
func (a *App) runSlash(ctx context.Context, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	store := a.engine.Store()

	switch strings.ToLower(name) {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h":
		fmt.Fprintln(a.out, replHelp)

	case "/chats":
		view := store.View()
		for _, c := range view.Chats {
			fmt.Fprintln(a.out, formatChatLine(c, view.HasChat && c.ID == view.Chat.ID))
		}

	case "/open":
		id, err := parseID("chat-id", arg)
		if err != nil {
			return false, err
		}
		if err := a.engine.SelectChat(ctx, id); err != nil {
			return false, err
		}
		a.printWelcome()

	case "/new":
		if _, err := a.engine.CreateChat(ctx); err != nil {
			return false, err
		}

	case "/rename":
		id, err := a.requireChat()
		if err != nil {
			return false, err
		}
		return false, a.engine.RenameChat(ctx, id, arg)

	case "/history":
		a.printer.Transcript(store.View().Messages)

	case "/reload":
		if err := a.engine.Reload(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(a.out, DimStyle.Render(fmt.Sprintf("%d messages", len(store.View().Messages))))

	case "/files":
		view := store.View()
		attached := model.FileIDs(view.Attachments)
		for _, f := range view.Library {
			fmt.Fprintln(a.out, formatFileLine(f, slices.Contains(attached, f.ID), a.printer.Width()))
		}

	case "/upload":
		if arg == "" {
			return false, &UsageError{Arg: "path", Reason: "usage: /upload <path>"}
		}
		_, err := a.uploadPath(ctx, arg, true)
		return false, err

	case "/attach":
		id, err := parseID("file-id", arg)
		if err != nil {
			return false, err
		}
		return false, a.engine.AttachToActiveChat(ctx, id)

	case "/detach":
		id, err := parseID("file-id", arg)
		if err != nil {
			return false, err
		}
		return false, a.engine.RemoveFile(ctx, id)

	case "/status", "/s":
		a.printStatus()

	default:
		return false, &UsageError{Arg: "command", Reason: name + " (try /help)"}
	}
	return false, nil
}

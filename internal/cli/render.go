// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/docchat/internal/config"
	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/session"
)

// Printer writes chat content to the terminal. Replies are rendered as
// markdown when the output is a terminal and markdown is enabled;
// otherwise they are streamed as plain text while they arrive.
type Printer struct {
	out      io.Writer
	markdown bool
	width    int
	theme    string

	once     sync.Once
	renderer *glamour.TermRenderer
	err      error
}

// NewPrinter creates a printer for out.
func NewPrinter(out io.Writer, ui config.UIConfig) *Printer {
	return &Printer{
		out:      out,
		markdown: ui.Markdown && IsTerminal(out),
		width:    TerminalWidth(out, ui.Width),
		theme:    ui.Theme,
	}
}

// Markdown reports whether replies are rendered as markdown.
func (p *Printer) Markdown() bool { return p.markdown }

// Width returns the output width in cells.
func (p *Printer) Width() int { return p.width }

func (p *Printer) termRenderer() (*glamour.TermRenderer, error) {
	p.once.Do(func() {
		style := glamour.WithAutoStyle()
		if p.theme == "dark" || p.theme == "light" {
			style = glamour.WithStandardStyle(p.theme)
		}
		p.renderer, p.err = glamour.NewTermRenderer(style, glamour.WithWordWrap(p.width-2))
	})
	return p.renderer, p.err
}

// Render returns content as it should appear on the output. Markdown that
// fails to render is shown as is.
func (p *Printer) Render(content string) string {
	if !p.markdown {
		return content
	}
	r, err := p.termRenderer()
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// Message prints one transcript entry.
func (p *Printer) Message(m model.Message) {
	fmt.Fprintln(p.out, RoleStyle.Render(m.Role.DisplayName()+":"))
	if m.Role == model.RoleAssistant {
		fmt.Fprintln(p.out, p.Render(m.Content))
	} else {
		fmt.Fprintln(p.out, m.Content)
	}
	if len(m.Files) > 0 {
		names := make([]string, len(m.Files))
		for i, f := range m.Files {
			names[i] = f.Name
		}
		fmt.Fprintln(p.out, DimStyle.Render("attached: "+strings.Join(names, ", ")))
	}
	fmt.Fprintln(p.out)
}

// Transcript prints a chat's messages.
func (p *Printer) Transcript(msgs []model.Message) {
	for _, m := range msgs {
		p.Message(m)
	}
}

// Follow echoes the assistant content written to chatID while a reply
// streams. It is a no-op in markdown mode, where the finished reply is
// rendered instead. The returned function stops following.
func (p *Printer) Follow(store *session.Store, chatID int64) (stop func()) {
	if p.markdown {
		return func() {}
	}
	return store.Subscribe(func(c session.Change) {
		if c.ChatID != chatID || c.MessageID == 0 {
			return
		}
		switch c.Kind {
		case session.ChangeMessages:
			for _, m := range store.Messages(chatID) {
				if m.ID == c.MessageID && m.Role == model.RoleAssistant {
					io.WriteString(p.out, m.Content)
				}
			}
		case session.ChangeContent:
			io.WriteString(p.out, c.Delta)
		}
	})
}

// Reply finishes a reply started with Follow.
func (p *Printer) Reply(content string) {
	if p.markdown {
		if content != "" {
			fmt.Fprintln(p.out, p.Render(content))
		}
		return
	}
	if content != "" {
		fmt.Fprintln(p.out)
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/docchat/internal/session"
)

// DefaultTitleMaxRunes is how much of the first reply becomes the chat title.
const DefaultTitleMaxRunes = 25

// titleEllipsis marks a truncated title.
const titleEllipsis = "..."

// ProvisionalTitle derives a chat title from assistant content: the first
// maxRunes runes of the NFC normalized, trimmed content, with "..."
// appended when cut. Line breaks and tabs become single spaces so the
// title stays on one line. Returns "" for blank content.
func ProvisionalTitle(content string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultTitleMaxRunes
	}
	title := normalizeTitle(content)
	if utf8.RuneCountInString(title) <= maxRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:maxRunes]) + titleEllipsis
}

// normalizeTitle maps each whitespace rune to one space, so rune counts
// match the content's.
func normalizeTitle(content string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, strings.TrimSpace(norm.NFC.String(content)))
}

// titleTracker issues the provisional title of one send at most once.
// It is armed when the assistant message is created for a chat still
// carrying the default title, and fires as soon as the reply is long
// enough to fix the title, or when the reply ends.
type titleTracker struct {
	maxRunes int
	checked  bool
	armed    bool
	issued   bool
}

// arm checks the chat's title once, when the assistant message appears.
func (t *titleTracker) arm(store *session.Store, chatID int64) {
	t.checked = true
	if chat, ok := store.Chat(chatID); ok {
		t.armed = chat.HasDefaultTitle()
	}
}

// ready reports whether the title can be issued for content. final is set
// once the stream has terminated.
func (t *titleTracker) ready(content string, final bool) bool {
	if !t.armed || t.issued {
		return false
	}
	title := normalizeTitle(content)
	if title == "" {
		return false
	}
	if final || utf8.RuneCountInString(title) > t.maxRunes {
		t.issued = true
		return true
	}
	return false
}

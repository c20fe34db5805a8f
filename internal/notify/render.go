// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Toast palette.
var (
	colorStatus  = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}
	colorError   = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// minLineWidth keeps toasts readable on very narrow terminals.
const minLineWidth = 20

func kindStyle(k Kind) (lipgloss.AdaptiveColor, string) {
	switch k {
	case KindError:
		return colorError, "✗"
	case KindWarning:
		return colorWarning, "!"
	case KindSuccess:
		return colorSuccess, "✓"
	default:
		return colorStatus, "•"
	}
}

// RenderLine renders a toast as a single line no wider than width cells.
// The message is truncated with "..." when it does not fit. A countdown is
// shown while the toast is active at now.
func RenderLine(t Toast, width int, now time.Time) string {
	if width < minLineWidth {
		width = minLineWidth
	}

	color, icon := kindStyle(t.Kind)
	prefix := icon + " "

	suffix := ""
	if secs := int(t.TimeRemaining(now).Round(time.Second) / time.Second); secs > 0 {
		suffix = " (" + strconv.Itoa(secs) + "s)"
	}

	message := strings.Join(strings.Fields(t.Message), " ")
	room := width - runewidth.StringWidth(prefix) - runewidth.StringWidth(suffix)
	if room < 1 {
		room = 1
	}
	message = runewidth.Truncate(message, room, "...")

	iconStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	hintStyle := lipgloss.NewStyle().Foreground(colorMuted).Italic(true)

	return iconStyle.Render(prefix) + message + hintStyle.Render(suffix)
}

// RenderStack renders toasts one per line, newest last.
func RenderStack(toasts []Toast, width int, now time.Time) string {
	lines := make([]string, 0, len(toasts))
	for i := len(toasts) - 1; i >= 0; i-- {
		lines = append(lines, RenderLine(toasts[i], width, now))
	}
	return strings.Join(lines, "\n")
}

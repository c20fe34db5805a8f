// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify provides transient, auto-dismissing user notifications.
//
// Operation failures are never allowed to crash the session; they are
// turned into toasts that disappear after a fixed display duration.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// TOAST TYPES
// =============================================================================

// Kind represents the type of toast notification.
type Kind int

const (
	// KindStatus is an informational toast (cyan color)
	KindStatus Kind = iota
	// KindError is an error toast (rose/red color)
	KindError
	// KindWarning is a warning toast (amber color)
	KindWarning
	// KindSuccess is a success toast (emerald color)
	KindSuccess
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindSuccess:
		return "success"
	default:
		return "status"
	}
}

// DefaultDuration is how long a toast stays visible.
const DefaultDuration = 5 * time.Second

// DefaultMaxToasts is the maximum number of toasts kept at once.
const DefaultMaxToasts = 5

// Toast is one notification.
type Toast struct {
	ID        int
	Message   string
	Kind      Kind
	CreatedAt time.Time
	Duration  time.Duration
}

// ExpiresAt returns when the toast auto-dismisses.
func (t Toast) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.Duration)
}

// IsExpired returns true if the toast should be dismissed at now.
func (t Toast) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// TimeRemaining returns how much time is left before auto-dismiss.
func (t Toast) TimeRemaining(now time.Time) time.Duration {
	remaining := t.ExpiresAt().Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// =============================================================================
// MANAGER
// =============================================================================

// Option configures a Manager.
type Option func(*Manager)

// WithDuration sets the auto-dismiss duration.
func WithDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.duration = d
		}
	}
}

// WithMaxToasts caps the number of toasts kept.
func WithMaxToasts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxToasts = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithSink registers a function called with every new toast, outside the
// manager's lock.
func WithSink(fn func(Toast)) Option {
	return func(m *Manager) {
		m.sink = fn
	}
}

// WithLogger logs every toast at a level matching its kind.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager holds active toasts. Expired toasts are pruned whenever toasts
// are read, so no background goroutine is needed.
type Manager struct {
	mu        sync.Mutex
	toasts    []Toast
	nextID    int
	maxToasts int
	duration  time.Duration
	now       func() time.Time
	sink      func(Toast)
	logger    *slog.Logger
}

// NewManager creates a toast manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		nextID:    1,
		maxToasts: DefaultMaxToasts,
		duration:  DefaultDuration,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify adds a toast and returns its ID.
func (m *Manager) Notify(kind Kind, message string) int {
	m.mu.Lock()
	t := Toast{
		ID:        m.nextID,
		Message:   message,
		Kind:      kind,
		CreatedAt: m.now(),
		Duration:  m.duration,
	}
	m.nextID++

	// Newest first
	m.toasts = append([]Toast{t}, m.toasts...)
	if len(m.toasts) > m.maxToasts {
		m.toasts = m.toasts[:m.maxToasts]
	}
	sink, logger := m.sink, m.logger
	m.mu.Unlock()

	if logger != nil {
		level := slog.LevelInfo
		switch kind {
		case KindError:
			level = slog.LevelError
		case KindWarning:
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "notification", "kind", kind.String(), "message", message)
	}
	if sink != nil {
		sink(t)
	}
	return t.ID
}

// Error adds an error toast.
func (m *Manager) Error(message string) int {
	return m.Notify(KindError, message)
}

// Warning adds a warning toast.
func (m *Manager) Warning(message string) int {
	return m.Notify(KindWarning, message)
}

// Status adds an informational toast.
func (m *Manager) Status(message string) int {
	return m.Notify(KindStatus, message)
}

// Success adds a success toast.
func (m *Manager) Success(message string) int {
	return m.Notify(KindSuccess, message)
}

// Dismiss removes a toast before it expires.
func (m *Manager) Dismiss(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, t := range m.toasts {
		if t.ID == id {
			m.toasts = append(m.toasts[:i:i], m.toasts[i+1:]...)
			return
		}
	}
}

// Active prunes expired toasts and returns a copy of the rest, newest
// first.
func (m *Manager) Active() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	active := make([]Toast, 0, len(m.toasts))
	for _, t := range m.toasts {
		if !t.IsExpired(now) {
			active = append(active, t)
		}
	}
	m.toasts = active

	out := make([]Toast, len(active))
	copy(out, active)
	return out
}

// Clear removes all toasts.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toasts = nil
}

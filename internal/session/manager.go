// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives a single active chat session on top of the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatvault/internal/model"
	"github.com/jeranaias/chatvault/internal/storage"
	"github.com/jeranaias/chatvault/internal/util"
)

// DefaultTitle is given to sessions started without a title. The first user
// turn replaces it.
const DefaultTitle = "New Chat"

// maxAutoTitle is the rune limit for titles derived from the first turn.
const maxAutoTitle = 60

// ErrNoSession is returned by turn operations when no session is active.
var ErrNoSession = errors.New("no active session")

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the active session and its cached message list. All writes
// to the active session go through one mutex, so callers sharing a Manager
// never interleave appends.
type Manager struct {
	mu sync.Mutex

	store *storage.Store
	log   *slog.Logger
	now   func() time.Time

	current  *model.Session
	messages []model.Message
}

// Options configures a Manager.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock used to stamp new messages.
	Now func() time.Time
}

// NewManager creates a manager with no active session.
func NewManager(store *storage.Store, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store: store,
		log:   opts.Logger.With("component", "session"),
		now:   opts.Now,
	}
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// Start creates and activates a new session. With a nil cfg the default
// template's configuration is used; if the store has no default, the
// built-in Balanced preset is used and a warning logged.
func (m *Manager) Start(ctx context.Context, title string, cfg *model.LLMConfig) (*model.Session, error) {
	var conf model.LLMConfig
	if cfg != nil {
		conf = *cfg
	} else {
		def, err := m.DefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		conf = def
	}
	return m.start(ctx, title, conf)
}

// StartFromTemplate creates and activates a session using the named template.
func (m *Manager) StartFromTemplate(ctx context.Context, title, templateName string) (*model.Session, error) {
	tmpl, err := m.store.Templates.GetByName(ctx, templateName)
	if err != nil {
		return nil, err
	}
	return m.start(ctx, title, tmpl.Config)
}

// DefaultConfig returns the configuration new sessions get when none is
// given.
func (m *Manager) DefaultConfig(ctx context.Context) (model.LLMConfig, error) {
	tmpl, err := m.store.Templates.GetDefault(ctx)
	switch {
	case err == nil:
		return tmpl.Config, nil
	case errors.Is(err, storage.ErrNoDefaultConfigured):
		m.log.Warn("no default template configured, using built-in preset", "preset", model.PresetBalanced)
		return model.DefaultConfig(), nil
	default:
		return model.LLMConfig{}, err
	}
}

func (m *Manager) start(ctx context.Context, title string, cfg model.LLMConfig) (*model.Session, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	sess := model.NewSession(title, cfg)
	sess.CreatedAt = m.now().UTC()
	sess.LastActive = sess.CreatedAt
	if err := m.store.Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = sess
	m.messages = []model.Message{}
	m.mu.Unlock()

	m.log.Info("session started", "session_id", sess.ID)
	return cloneSession(sess), nil
}

// Load activates an existing session and caches its messages.
func (m *Manager) Load(ctx context.Context, id string) (*model.Session, error) {
	sess, err := m.store.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := m.store.Messages.ListOrdered(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = sess
	m.messages = msgs
	m.mu.Unlock()

	m.log.Debug("session loaded", "session_id", id, "messages", len(msgs))
	return cloneSession(sess), nil
}

// Close deactivates the current session. Nothing is deleted.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.messages = nil
}

// Current returns a copy of the active session, or nil.
func (m *Manager) Current() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return cloneSession(m.current)
}

// Messages returns a copy of the active session's messages.
func (m *Manager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages...)
}

// =============================================================================
// TURNS
// =============================================================================

// AppendTurn appends a message to the active session. Its timestamp is the
// later of now and the previous message, so indices and timestamps stay
// monotonic even if the wall clock steps back. The first user turn of a
// session still named DefaultTitle renames it after the turn's text.
func (m *Manager) AppendTurn(ctx context.Context, role model.Role, items ...model.ContentItem) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoSession
	}
	if err := checkTurn(role, items); err != nil {
		return nil, err
	}
	return m.appendLocked(ctx, role, items)
}

// EditTurn replaces the message at index and drops everything after it.
// Messages are never updated in place: the tail is truncated and the new
// content appended with the original role. The new content is checked
// before anything is truncated, so a rejected edit leaves history intact.
func (m *Manager) EditTurn(ctx context.Context, index int, items ...model.ContentItem) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoSession
	}
	if index < 0 || index >= len(m.messages) {
		return nil, fmt.Errorf("edit turn: index %d out of range [0, %d): %w", index, len(m.messages), storage.ErrNotFound)
	}
	role := m.messages[index].Role
	if err := checkTurn(role, items); err != nil {
		return nil, err
	}

	if err := m.store.Messages.DeleteFromIndex(ctx, m.current.ID, index); err != nil {
		return nil, err
	}
	dropped := len(m.messages) - index
	m.messages = m.messages[:index]

	msg, err := m.appendLocked(ctx, role, items)
	if err != nil {
		return nil, err
	}
	m.log.Debug("turn edited", "session_id", m.current.ID, "index", index, "dropped", dropped)
	return msg, nil
}

// DeleteTurn removes a single message; later messages shift down by one.
func (m *Manager) DeleteTurn(ctx context.Context, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	if err := m.store.Messages.DeleteAt(ctx, m.current.ID, index); err != nil {
		return err
	}
	return m.refreshLocked(ctx)
}

// checkTurn applies the strict content rules to a turn about to be written:
// a known role and only known, well-formed content items.
func checkTurn(role model.Role, items []model.ContentItem) error {
	if !role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", storage.ErrInvalidArgument, role)
	}
	if err := model.Content(items).Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidArgument, err)
	}
	return nil
}

func (m *Manager) appendLocked(ctx context.Context, role model.Role, items []model.ContentItem) (*model.Message, error) {
	at := m.now().UTC()
	if n := len(m.messages); n > 0 && at.Before(m.messages[n-1].CreatedAt) {
		at = m.messages[n-1].CreatedAt
	}

	msg := &model.Message{
		SessionID: m.current.ID,
		Role:      role,
		Content:   model.Content(items),
		Index:     len(m.messages),
		CreatedAt: at,
	}
	if err := m.store.Messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	m.messages = append(m.messages, *msg)
	if at.After(m.current.LastActive) {
		m.current.LastActive = at
	}

	if role == model.RoleUser && m.current.Title == DefaultTitle {
		if title := util.TruncateRunes(util.FirstLine(msg.Content.Text()), maxAutoTitle); title != "" {
			if err := m.store.Sessions.Rename(ctx, m.current.ID, title); err != nil {
				m.log.Warn("auto title failed", "session_id", m.current.ID, "error", err)
			} else {
				m.current.Title = title
			}
		}
	}

	out := *msg
	return &out, nil
}

// =============================================================================
// SESSION SETTINGS
// =============================================================================

// Rename changes the active session's title.
func (m *Manager) Rename(ctx context.Context, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	if err := m.store.Sessions.Rename(ctx, m.current.ID, title); err != nil {
		return err
	}
	return m.refreshLocked(ctx)
}

// SetPrivate toggles whether the active session shows up in recent lists.
func (m *Manager) SetPrivate(ctx context.Context, private bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	if err := m.store.Sessions.SetPrivate(ctx, m.current.ID, private); err != nil {
		return err
	}
	m.current.IsPrivate = private
	return nil
}

// UpdateConfig replaces the active session's configuration snapshot.
func (m *Manager) UpdateConfig(ctx context.Context, cfg model.LLMConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("update config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	updated := cloneSession(m.current)
	updated.Config = cfg.Clone()
	updated.LastActive = m.now().UTC()
	if updated.LastActive.Before(m.current.LastActive) {
		updated.LastActive = m.current.LastActive
	}
	if err := m.store.Sessions.Update(ctx, updated); err != nil {
		return err
	}
	m.current = updated
	return nil
}

// refreshLocked re-reads the active session and its messages.
func (m *Manager) refreshLocked(ctx context.Context) error {
	sess, err := m.store.Sessions.Get(ctx, m.current.ID)
	if err != nil {
		return err
	}
	msgs, err := m.store.Messages.ListOrdered(ctx, sess.ID)
	if err != nil {
		return err
	}
	m.current = sess
	m.messages = msgs
	return nil
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status summarizes the active session.
type Status struct {
	Active       bool
	SessionID    string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	LastActive   time.Time
	IsPrivate    bool
	ModelID      string
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Status{}
	}
	return Status{
		Active:       true,
		SessionID:    m.current.ID,
		Title:        m.current.Title,
		MessageCount: len(m.messages),
		CreatedAt:    m.current.CreatedAt,
		LastActive:   m.current.LastActive,
		IsPrivate:    m.current.IsPrivate,
		ModelID:      m.current.Config.ModelID,
	}
}

func cloneSession(s *model.Session) *model.Session {
	out := *s
	out.Config = s.Config.Clone()
	return &out
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, messages and templates.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is a single conversation. It owns its messages.
type Session struct {
	ID         string    `json:"session_id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Config     LLMConfig `json:"config"`
	IsPrivate  bool      `json:"is_private"`
}

// NewSession creates a session with a fresh ID. The config is copied.
func NewSession(title string, cfg LLMConfig) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         NewID(),
		Title:      title,
		CreatedAt:  now,
		LastActive: now,
		Config:     cfg.Clone(),
	}
}

// SessionSummary is a session annotated with aggregates over its messages.
// FirstMessageAt and LastMessageAt are nil for sessions without messages.
type SessionSummary struct {
	Session
	MessageCount   int        `json:"message_count"`
	FirstMessageAt *time.Time `json:"first_message_at,omitempty"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
}

// =============================================================================
// EXPORT BUNDLE
// =============================================================================

// ChatExport is a self-contained copy of a session and its messages.
type ChatExport struct {
	Session    Session   `json:"session"`
	Messages   []Message `json:"messages"`
	ExportedAt time.Time `json:"exported_at"`
}

// NewID returns a new opaque identifier for sessions and templates.
func NewID() string {
	return uuid.NewString()
}

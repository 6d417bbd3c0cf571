// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// SESSION EXPORT / IMPORT
// =============================================================================

// ExportSession returns the session and its ordered messages as one bundle.
// Both reads share a transaction so the bundle is consistent.
func (s *Store) ExportSession(ctx context.Context, id string) (*model.ChatExport, error) {
	const op = "storage.ExportSession"

	if strings.TrimSpace(id) == "" {
		return nil, invalidArg(op, "session id is required")
	}

	var out model.ChatExport
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, id)
		sess, err := scanSession(row)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(op, "session %q", id)
		}
		if err != nil {
			return err
		}
		msgs, err := listMessages(ctx, tx, id)
		if err != nil {
			return err
		}
		out = model.ChatExport{Session: *sess, Messages: msgs, ExportedAt: s.now()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportOptions controls ImportSession.
type ImportOptions struct {
	// NewID stores the bundle under a fresh session ID instead of the
	// exported one.
	NewID bool
}

// ImportSession stores the bundle's session and all of its messages in one
// transaction and returns the stored session. Messages are written in index
// order and must form 0..n-1 with non-decreasing timestamps.
func (s *Store) ImportSession(ctx context.Context, export *model.ChatExport, opts ImportOptions) (*model.Session, error) {
	const op = "storage.ImportSession"

	if export == nil {
		return nil, invalidArg(op, "export is nil")
	}
	sess := export.Session
	if opts.NewID {
		sess.ID = model.NewID()
	}
	if err := validateSession(op, &sess); err != nil {
		return nil, err
	}
	if sess.CreatedAt.IsZero() {
		return nil, invalidArg(op, "session created_at is required")
	}
	if sess.LastActive.Before(sess.CreatedAt) {
		sess.LastActive = sess.CreatedAt
	}
	if err := checkTime(op, "session created_at", sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := checkTime(op, "session last_active", sess.LastActive); err != nil {
		return nil, err
	}
	cfg, err := sess.Config.MarshalBlob()
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
	}

	type row struct {
		msg        model.Message
		content    string
		searchText string
	}
	rows := make([]row, 0, len(export.Messages))
	for i, m := range export.Messages {
		if m.Index != i {
			return nil, invalidArg(op, "message %d has index %d", i, m.Index)
		}
		if !m.Role.IsValid() {
			return nil, invalidArg(op, "message %d: unknown role %q", i, m.Role)
		}
		if m.CreatedAt.IsZero() {
			return nil, invalidArg(op, "message %d: created_at is required", i)
		}
		if err := checkTime(op, fmt.Sprintf("message %d created_at", i), m.CreatedAt); err != nil {
			return nil, err
		}
		if i > 0 && m.CreatedAt.Before(export.Messages[i-1].CreatedAt) {
			return nil, invalidArg(op, "message %d precedes message %d", i, i-1)
		}
		content, err := encodeContent(m.Content)
		if err != nil {
			return nil, &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
		}
		m.SessionID = sess.ID
		if m.CreatedAt.After(sess.LastActive) {
			sess.LastActive = m.CreatedAt
		}
		rows = append(rows, row{msg: m, content: content, searchText: foldKey(m.Content.SearchableText())})
	}

	err = s.withTx(ctx, op, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (session_id, title, title_key, created_at, last_active, config_json, is_private)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, sess.Title, foldKey(sess.Title), toNanos(sess.CreatedAt), toNanos(sess.LastActive),
			string(cfg), boolToInt(sess.IsPrivate))
		if err != nil {
			if isUniqueViolation(err) {
				return &Error{Op: op, Kind: ErrDuplicateKey, Msg: "session " + sess.ID, Err: err}
			}
			return err
		}

		for _, r := range rows {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO messages (session_id, role, content_json, search_text, message_index, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, sess.ID, string(r.msg.Role), r.content, r.searchText, r.msg.Index, toNanos(r.msg.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session imported", "session_id", sess.ID, "messages", len(rows))
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.LastActive = sess.LastActive.UTC()
	return &sess, nil
}

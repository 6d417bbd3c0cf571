// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// MESSAGE STORE
// =============================================================================

// MessageStore persists the ordered messages of a session. Indices within a
// session are always exactly 0..n-1.
type MessageStore struct {
	s *Store
}

// Append inserts msg at msg.Index and advances the owning session's
// last_active to msg.CreatedAt, in one transaction.
//
// The index must equal the current message count: a lower index fails with
// ErrDuplicateIndex, a higher one with ErrInvalidArgument. CreatedAt must not
// precede the latest existing message. The content is stored as an opaque
// JSON blob; item kinds are not checked here.
func (ms *MessageStore) Append(ctx context.Context, msg *model.Message) error {
	const op = "messages.Append"

	if msg == nil {
		return invalidArg(op, "message is nil")
	}
	if strings.TrimSpace(msg.SessionID) == "" {
		return invalidArg(op, "session id is required")
	}
	if msg.Index < 0 {
		return invalidArg(op, "negative index %d", msg.Index)
	}
	if !msg.Role.IsValid() {
		return invalidArg(op, "unknown role %q", msg.Role)
	}
	if msg.CreatedAt.IsZero() {
		return invalidArg(op, "created_at is required")
	}
	if err := checkTime(op, "created_at", msg.CreatedAt); err != nil {
		return err
	}
	content, err := encodeContent(msg.Content)
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
	}
	searchText := foldKey(msg.Content.SearchableText())
	createdAt := toNanos(msg.CreatedAt)

	return ms.s.withTx(ctx, op, func(tx *sql.Tx) error {
		var lastActive int64
		err := tx.QueryRowContext(ctx,
			`SELECT last_active FROM sessions WHERE session_id = ?`, msg.SessionID,
		).Scan(&lastActive)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(op, "session %q", msg.SessionID)
		}
		if err != nil {
			return err
		}

		var count int
		var latest sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*), MAX(created_at) FROM messages WHERE session_id = ?`, msg.SessionID,
		).Scan(&count, &latest); err != nil {
			return err
		}

		switch {
		case msg.Index < count:
			return errorf(op, ErrDuplicateIndex, "session %q already has a message at index %d", msg.SessionID, msg.Index)
		case msg.Index > count:
			return invalidArg(op, "index %d leaves a gap; next index is %d", msg.Index, count)
		}
		if latest.Valid && createdAt < latest.Int64 {
			return invalidArg(op, "created_at %s precedes the previous message", msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, role, content_json, search_text, message_index, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.SessionID, string(msg.Role), content, searchText, msg.Index, createdAt)
		if err != nil {
			if isUniqueViolation(err) {
				return &Error{Op: op, Kind: ErrDuplicateIndex, Err: err}
			}
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET last_active = MAX(last_active, ?) WHERE session_id = ?`,
			createdAt, msg.SessionID)
		return err
	})
}

// ListOrdered returns every message of the session in index order. An
// unknown session yields an empty slice.
func (ms *MessageStore) ListOrdered(ctx context.Context, sessionID string) ([]model.Message, error) {
	const op = "messages.ListOrdered"

	if strings.TrimSpace(sessionID) == "" {
		return nil, invalidArg(op, "session id is required")
	}
	msgs, err := listMessages(ctx, ms.s.db, sessionID)
	if err != nil {
		return nil, classify(op, err)
	}
	return msgs, nil
}

// Count returns the number of messages in the session.
func (ms *MessageStore) Count(ctx context.Context, sessionID string) (int, error) {
	const op = "messages.Count"

	if strings.TrimSpace(sessionID) == "" {
		return 0, invalidArg(op, "session id is required")
	}
	var n int
	err := ms.s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

// DeleteAt removes the message at index and shifts every later message down
// by one. The delete, the renumbering and the last_active touch commit
// together or not at all.
func (ms *MessageStore) DeleteAt(ctx context.Context, sessionID string, index int) error {
	const op = "messages.DeleteAt"

	if strings.TrimSpace(sessionID) == "" {
		return invalidArg(op, "session id is required")
	}
	if index < 0 {
		return invalidArg(op, "negative index %d", index)
	}

	return ms.s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE session_id = ? AND message_index = ?`, sessionID, index)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound(op, "no message at index %d in session %q", index, sessionID)
		}

		if err := renumberAfter(ctx, tx, sessionID, index); err != nil {
			return fmt.Errorf("renumber: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE sessions SET last_active = MAX(last_active, ?) WHERE session_id = ?`,
			toNanos(ms.s.now()), sessionID)
		return err
	})
}

// DeleteFromIndex removes every message with index >= fromIndex. Used to
// truncate history before re-appending an edited turn.
func (ms *MessageStore) DeleteFromIndex(ctx context.Context, sessionID string, fromIndex int) error {
	const op = "messages.DeleteFromIndex"

	if strings.TrimSpace(sessionID) == "" {
		return invalidArg(op, "session id is required")
	}
	if fromIndex < 0 {
		return invalidArg(op, "negative index %d", fromIndex)
	}

	return ms.s.withTx(ctx, op, func(tx *sql.Tx) error {
		if err := requireSession(ctx, tx, op, sessionID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE session_id = ? AND message_index >= ?`, sessionID, fromIndex)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			ms.s.log.Debug("truncated session", "session_id", sessionID, "from_index", fromIndex, "removed", n)
		}
		return nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// renumberAfter closes the gap left at index. Rows are first parked at
// negative indices and then moved to their final slots, so the
// UNIQUE(session_id, message_index) constraint holds after every row update
// regardless of the order SQLite visits rows in.
func renumberAfter(ctx context.Context, tx *sql.Tx, sessionID string, index int) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE messages SET message_index = -message_index
		WHERE session_id = ? AND message_index > ?
	`, sessionID, index); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE messages SET message_index = -message_index - 1
		WHERE session_id = ? AND message_index < 0
	`, sessionID)
	return err
}

func requireSession(ctx context.Context, q execer, op, sessionID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(op, "session %q", sessionID)
	}
	return err
}

func listMessages(ctx context.Context, q execer, sessionID string) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT session_id, role, content_json, message_index, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY message_index
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var (
			m         model.Message
			role      string
			content   string
			createdAt int64
		)
		if err := rows.Scan(&m.SessionID, &role, &content, &m.Index, &createdAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.CreatedAt = fromNanos(createdAt)
		if err := json.Unmarshal([]byte(content), &m.Content); err != nil {
			return nil, fmt.Errorf("decode content of message %d: %w", m.Index, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// encodeContent renders the content_json column. json.Marshal rejects an
// opaque item whose Raw is not valid JSON.
func encodeContent(c model.Content) (string, error) {
	if c == nil {
		c = model.Content{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(data), nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// SESSION STORE
// =============================================================================

// SessionStore persists session metadata.
type SessionStore struct {
	s *Store
}

// sessionColumns is the column list scanned by scanSession.
const sessionColumns = `s.session_id, s.title, s.created_at, s.last_active, s.config_json, s.is_private`

// summaryColumns adds the per-session message aggregates.
const summaryColumns = sessionColumns + `,
	(SELECT COUNT(*) FROM messages m WHERE m.session_id = s.session_id) AS message_count,
	(SELECT MIN(m.created_at) FROM messages m WHERE m.session_id = s.session_id) AS first_message,
	(SELECT MAX(m.created_at) FROM messages m WHERE m.session_id = s.session_id) AS last_message`

// Create inserts a new session. The ID must be unique. A zero CreatedAt is
// set to now and a zero LastActive to CreatedAt; the stored values are
// written back into sess.
func (ss *SessionStore) Create(ctx context.Context, sess *model.Session) error {
	const op = "sessions.Create"

	if err := validateSession(op, sess); err != nil {
		return err
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = ss.s.now()
	}
	if sess.LastActive.IsZero() {
		sess.LastActive = sess.CreatedAt
	}
	if sess.LastActive.Before(sess.CreatedAt) {
		return invalidArg(op, "last_active precedes created_at")
	}
	if err := checkTime(op, "created_at", sess.CreatedAt); err != nil {
		return err
	}
	if err := checkTime(op, "last_active", sess.LastActive); err != nil {
		return err
	}
	cfg, err := sess.Config.MarshalBlob()
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
	}

	return ss.s.withTx(ctx, op, func(tx *sql.Tx) error {
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
		return nil
	})
}

// Update replaces the mutable fields: title, last_active, config and the
// privacy flag. last_active never moves backwards; an older value is ignored.
func (ss *SessionStore) Update(ctx context.Context, sess *model.Session) error {
	const op = "sessions.Update"

	if err := validateSession(op, sess); err != nil {
		return err
	}
	if sess.LastActive.IsZero() {
		return invalidArg(op, "last_active is required")
	}
	if err := checkTime(op, "last_active", sess.LastActive); err != nil {
		return err
	}
	cfg, err := sess.Config.MarshalBlob()
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
	}

	return ss.s.withTx(ctx, op, func(tx *sql.Tx) error {
		var createdAt int64
		err := tx.QueryRowContext(ctx,
			`SELECT created_at FROM sessions WHERE session_id = ?`, sess.ID).Scan(&createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(op, "session %q", sess.ID)
		}
		if err != nil {
			return err
		}
		if toNanos(sess.LastActive) < createdAt {
			return invalidArg(op, "last_active precedes created_at")
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET title = ?, title_key = ?, last_active = MAX(last_active, ?), config_json = ?, is_private = ?
			WHERE session_id = ?
		`, sess.Title, foldKey(sess.Title), toNanos(sess.LastActive), string(cfg),
			boolToInt(sess.IsPrivate), sess.ID)
		return err
	})
}

// Get returns the session with the given ID.
func (ss *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	const op = "sessions.Get"

	if strings.TrimSpace(id) == "" {
		return nil, invalidArg(op, "session id is required")
	}
	row := ss.s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "session %q", id)
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return sess, nil
}

// Info returns the session together with its message count and first/last
// message timestamps.
func (ss *SessionStore) Info(ctx context.Context, id string) (*model.SessionSummary, error) {
	const op = "sessions.Info"

	if strings.TrimSpace(id) == "" {
		return nil, invalidArg(op, "session id is required")
	}
	row := ss.s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM sessions s WHERE s.session_id = ?`, id)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "session %q", id)
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return sum, nil
}

// Rename sets the title and bumps last_active to now.
func (ss *SessionStore) Rename(ctx context.Context, id, title string) error {
	const op = "sessions.Rename"

	if strings.TrimSpace(id) == "" {
		return invalidArg(op, "session id is required")
	}
	if strings.TrimSpace(title) == "" {
		return invalidArg(op, "title is required")
	}

	return ss.s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE sessions SET title = ?, title_key = ?, last_active = MAX(last_active, ?)
			WHERE session_id = ?
		`, title, foldKey(title), toNanos(ss.s.now()), id)
		if err != nil {
			return err
		}
		return requireAffected(res, notFound(op, "session %q", id))
	})
}

// SetPrivate changes the privacy flag without touching last_active.
func (ss *SessionStore) SetPrivate(ctx context.Context, id string, private bool) error {
	const op = "sessions.SetPrivate"

	if strings.TrimSpace(id) == "" {
		return invalidArg(op, "session id is required")
	}
	return ss.s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET is_private = ? WHERE session_id = ?`, boolToInt(private), id)
		if err != nil {
			return err
		}
		return requireAffected(res, notFound(op, "session %q", id))
	})
}

// ListRecent returns up to limit sessions, most recently active first.
// Private sessions are skipped unless includePrivate is set.
func (ss *SessionStore) ListRecent(ctx context.Context, limit int, includePrivate bool) ([]model.SessionSummary, error) {
	const op = "sessions.ListRecent"

	if limit <= 0 {
		return nil, invalidArg(op, "limit must be positive, got %d", limit)
	}

	query := `SELECT ` + summaryColumns + ` FROM sessions s`
	if !includePrivate {
		query += ` WHERE s.is_private = 0`
	}
	query += ` ORDER BY s.last_active DESC, s.session_id LIMIT ?`

	out, err := querySummaries(ctx, ss.s.db, query, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// ListByDateRange returns sessions with at least one message created within
// [start, end], ordered by their most recent qualifying message. Bounds
// beyond the storable years are clamped.
func (ss *SessionStore) ListByDateRange(ctx context.Context, start, end time.Time) ([]model.SessionSummary, error) {
	const op = "sessions.ListByDateRange"

	if start.IsZero() || end.IsZero() {
		return nil, invalidArg(op, "start and end are required")
	}
	if end.Before(start) {
		return nil, invalidArg(op, "end precedes start")
	}

	query := `
		SELECT ` + summaryColumns + `
		FROM sessions s
		JOIN (
			SELECT session_id, MAX(created_at) AS latest
			FROM messages
			WHERE created_at BETWEEN ? AND ?
			GROUP BY session_id
		) q ON q.session_id = s.session_id
		ORDER BY q.latest DESC, s.session_id`

	out, err := querySummaries(ctx, ss.s.db, query, boundNanos(start), boundNanos(end))
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// Delete removes the session and all of its messages in one transaction.
// It fails with ErrNotFound if the session row does not exist, in which case
// nothing is changed.
func (ss *SessionStore) Delete(ctx context.Context, id string) error {
	const op = "sessions.Delete"

	if strings.TrimSpace(id) == "" {
		return invalidArg(op, "session id is required")
	}

	return ss.s.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(res, notFound(op, "session %q", id))
	})
}

// DeleteAll empties the sessions and messages tables. Templates are kept.
func (ss *SessionStore) DeleteAll(ctx context.Context) error {
	const op = "sessions.DeleteAll"

	var sessions, messages int64
	err := ss.s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM messages`)
		if err != nil {
			return err
		}
		messages, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `DELETE FROM sessions`)
		if err != nil {
			return err
		}
		sessions, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	ss.s.log.Info("deleted all sessions", "sessions", sessions, "messages", messages)
	return nil
}

// Count returns the number of stored sessions.
func (ss *SessionStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ss.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, classify("sessions.Count", err)
	}
	return n, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func validateSession(op string, sess *model.Session) error {
	if sess == nil {
		return invalidArg(op, "session is nil")
	}
	if strings.TrimSpace(sess.ID) == "" {
		return invalidArg(op, "session id is required")
	}
	if strings.TrimSpace(sess.Title) == "" {
		return invalidArg(op, "title is required")
	}
	return nil
}

func requireAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		sess       model.Session
		createdAt  int64
		lastActive int64
		cfg        string
		private    int
	)
	if err := row.Scan(&sess.ID, &sess.Title, &createdAt, &lastActive, &cfg, &private); err != nil {
		return nil, err
	}
	if err := fillSession(&sess, createdAt, lastActive, cfg, private); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanSummary(row rowScanner) (*model.SessionSummary, error) {
	var (
		sum        model.SessionSummary
		createdAt  int64
		lastActive int64
		cfg        string
		private    int
		first      sql.NullInt64
		last       sql.NullInt64
	)
	if err := row.Scan(&sum.ID, &sum.Title, &createdAt, &lastActive, &cfg, &private,
		&sum.MessageCount, &first, &last); err != nil {
		return nil, err
	}
	if err := fillSession(&sum.Session, createdAt, lastActive, cfg, private); err != nil {
		return nil, err
	}
	if first.Valid {
		t := fromNanos(first.Int64)
		sum.FirstMessageAt = &t
	}
	if last.Valid {
		t := fromNanos(last.Int64)
		sum.LastMessageAt = &t
	}
	return &sum, nil
}

func fillSession(sess *model.Session, createdAt, lastActive int64, cfg string, private int) error {
	sess.CreatedAt = fromNanos(createdAt)
	sess.LastActive = fromNanos(lastActive)
	sess.IsPrivate = private != 0
	c, err := model.UnmarshalConfigBlob([]byte(cfg))
	if err != nil {
		return err
	}
	sess.Config = c
	return nil
}

func querySummaries(ctx context.Context, q execer, query string, args ...any) ([]model.SessionSummary, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SessionSummary{}
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"errors"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// Error kinds. Use errors.Is(err, ErrNotFound) and friends to check.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrDuplicateName       = errors.New("duplicate name")
	ErrDuplicateIndex      = errors.New("duplicate message index")
	ErrNotFound            = errors.New("not found")
	ErrNoDefaultConfigured = errors.New("no default template configured")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrTransactionFailed   = errors.New("transaction failed")
)

// Error is returned by every store operation. Kind is one of the Err*
// values above; Err is the underlying cause and may be nil.
type Error struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind error, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

func errorf(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func invalidArg(op, format string, args ...any) *Error {
	return errorf(op, ErrInvalidArgument, format, args...)
}

func notFound(op, format string, args ...any) *Error {
	return errorf(op, ErrNotFound, format, args...)
}

// classify turns whatever came out of a transaction body into an *Error.
// Errors already classified pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return newError(op, ErrTransactionFailed, err)
}

// =============================================================================
// ENGINE ERROR INSPECTION
// =============================================================================

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Without extended result codes only the primary code is available.
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
		strings.Contains(se.Error(), "UNIQUE constraint failed")
}

// constraintColumn returns the "table.column" list from a UNIQUE failure
// message, or "" if it can't be found.
func constraintColumn(err error) string {
	msg := err.Error()
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return ""
	}
	rest := msg[i+len(marker):]
	if j := strings.IndexAny(rest, " )"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

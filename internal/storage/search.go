// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// QUERY TYPES
// =============================================================================

// Operator combines search terms.
type Operator string

const (
	// OpAnd requires every term to match somewhere in the session.
	OpAnd Operator = "AND"
	// OpOr requires at least one term to match.
	OpOr Operator = "OR"
)

// DateRange is an inclusive [Start, End] interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SearchQuery describes a free-text search.
type SearchQuery struct {
	// Terms are matched case-insensitively as substrings. '*' matches any
	// run of characters.
	Terms    []string
	Operator Operator

	// Titles and Content select where terms are looked for. At least one
	// must be set.
	Titles  bool
	Content bool

	// DateRange, if set, keeps only sessions with a message inside it.
	DateRange *DateRange

	// ExcludePrivate hides private sessions.
	ExcludePrivate bool

	// Limit caps the result count; 0 means no limit.
	Limit int
}

// =============================================================================
// SEARCH ENGINE
// =============================================================================

// SearchEngine answers free-text queries over titles and message content.
type SearchEngine struct {
	s *Store
}

// Find returns the sessions matching q, most recently active first. No
// usable terms yields an empty result, not an error.
func (se *SearchEngine) Find(ctx context.Context, q SearchQuery) ([]model.SessionSummary, error) {
	const op = "search.Find"

	switch q.Operator {
	case "":
		q.Operator = OpAnd
	case OpAnd, OpOr:
	default:
		return nil, invalidArg(op, "unknown operator %q", q.Operator)
	}
	if !q.Titles && !q.Content {
		return nil, invalidArg(op, "search must include titles or content")
	}
	if q.Limit < 0 {
		return nil, invalidArg(op, "negative limit %d", q.Limit)
	}
	if q.DateRange != nil {
		if q.DateRange.Start.IsZero() || q.DateRange.End.IsZero() {
			return nil, invalidArg(op, "date range needs start and end")
		}
		if q.DateRange.End.Before(q.DateRange.Start) {
			return nil, invalidArg(op, "date range end precedes start")
		}
	}

	terms := cleanTerms(q.Terms)
	if len(terms) == 0 {
		return []model.SessionSummary{}, nil
	}

	query, args := buildSearchSQL(q, terms)
	out, err := querySummaries(ctx, se.s.db, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}

	se.s.log.Debug("search", "terms", len(terms), "operator", q.Operator, "results", len(out))
	return out, nil
}

// buildSearchSQL assembles the WHERE clause: one predicate per term, each an
// OR over the selected fields, joined by the operator.
func buildSearchSQL(q SearchQuery, terms []string) (string, []any) {
	var (
		termPreds []string
		args      []any
	)
	for _, term := range terms {
		pattern := likePattern(term)
		var fields []string
		if q.Titles {
			fields = append(fields, `s.title_key LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		if q.Content {
			fields = append(fields, `EXISTS (
				SELECT 1 FROM messages m
				WHERE m.session_id = s.session_id AND m.search_text LIKE ? ESCAPE '\')`)
			args = append(args, pattern)
		}
		termPreds = append(termPreds, "("+strings.Join(fields, " OR ")+")")
	}

	where := []string{"(" + strings.Join(termPreds, " "+string(q.Operator)+" ") + ")"}
	if q.DateRange != nil {
		where = append(where, `EXISTS (
			SELECT 1 FROM messages d
			WHERE d.session_id = s.session_id AND d.created_at BETWEEN ? AND ?)`)
		args = append(args, boundNanos(q.DateRange.Start), boundNanos(q.DateRange.End))
	}
	if q.ExcludePrivate {
		where = append(where, `s.is_private = 0`)
	}

	query := `SELECT ` + summaryColumns + ` FROM sessions s WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY s.last_active DESC, s.session_id`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return query, args
}

// =============================================================================
// MATCHING HELPERS
// =============================================================================

// MatchingMessages returns the messages whose searchable text contains at
// least one of terms, using the same folding and wildcard rules as Find.
func MatchingMessages(messages []model.Message, terms []string) []model.Message {
	terms = cleanTerms(terms)
	out := []model.Message{}
	if len(terms) == 0 {
		return out
	}
	for _, m := range messages {
		text := foldKey(m.Content.SearchableText())
		for _, term := range terms {
			if matchFolded(text, term) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// TitleMatches reports whether title contains any of terms.
func TitleMatches(title string, terms []string) bool {
	key := foldKey(title)
	for _, term := range cleanTerms(terms) {
		if matchFolded(key, term) {
			return true
		}
	}
	return false
}

// foldKey case-folds s for storage in title_key and search_text. A new
// Caser is built per call; Casers are not safe for concurrent use.
func foldKey(s string) string {
	return cases.Fold().String(s)
}

// cleanTerms folds terms and drops blank ones and lone wildcards.
func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if strings.Trim(t, "*") == "" {
			continue
		}
		out = append(out, foldKey(t))
	}
	return out
}

// likePattern escapes LIKE metacharacters in a folded term and turns '*'
// into '%'.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `%`)
	return "%" + r.Replace(term) + "%"
}

// matchFolded applies the LIKE semantics of likePattern to already folded
// text: the '*'-separated fragments must appear in order.
func matchFolded(text, term string) bool {
	pos := 0
	for _, part := range strings.Split(term, "*") {
		if part == "" {
			continue
		}
		i := strings.Index(text[pos:], part)
		if i < 0 {
			return false
		}
		pos += i + len(part)
	}
	return true
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// search_cmd.go - The "search" command.

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/model"
	"github.com/jeranaias/chatvault/internal/storage"
)

// maxSnippets caps the matching messages shown per session.
const maxSnippets = 3

// searchHit is one search result with the messages that matched.
type searchHit struct {
	Session    model.SessionSummary `json:"session"`
	TitleMatch bool                 `json:"title_match"`
	Matches    []messageMatch       `json:"matches"`
}

type messageMatch struct {
	Index   int        `json:"index"`
	Role    model.Role `json:"role"`
	Snippet string     `json:"snippet"`
}

func (a *App) searchCommand() *cobra.Command {
	var (
		useOr          bool
		titles         bool
		content        bool
		from, to       string
		excludePrivate bool
		limit          int
	)
	cmd := &cobra.Command{
		Use:   "search TERM...",
		Short: "Find sessions by title and message content",
		Long: `Find sessions whose title or messages contain the given terms.
Matching is case-insensitive; '*' matches any run of characters. By default
every term must match somewhere in the session (--or relaxes that) and both
titles and content are searched.`,
		Example: `  $ chatvault search paris tokyo --or
  $ chatvault search "budget*2025" --content --from 2025-01-01`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := storage.SearchQuery{
				Terms:          args,
				Operator:       storage.OpAnd,
				Titles:         titles,
				Content:        content,
				ExcludePrivate: excludePrivate,
				Limit:          limit,
			}
			if useOr {
				q.Operator = storage.OpOr
			}
			if !titles && !content {
				q.Titles, q.Content = true, true
			}
			if !cmd.Flags().Changed("exclude-private") {
				q.ExcludePrivate = !a.cfg.UI.IncludePrivate
			}
			if from != "" || to != "" {
				start, end, err := parseRange(from, to)
				if err != nil {
					return err
				}
				q.DateRange = &storage.DateRange{Start: start, End: end}
			}

			hits, err := a.search(cmd.Context(), q)
			if err != nil {
				return err
			}
			return a.respond(cmd, hits, func(w io.Writer) { writeSearchHits(w, hits) })
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&useOr, "or", false, "match sessions containing any term")
	fl.BoolVar(&titles, "titles", false, "search titles")
	fl.BoolVar(&content, "content", false, "search message content")
	fl.StringVar(&from, "from", "", "only sessions with messages on or after this date")
	fl.StringVar(&to, "to", "", "only sessions with messages on or before this date")
	fl.BoolVar(&excludePrivate, "exclude-private", false, "hide private sessions (default !ui.include_private)")
	fl.IntVarP(&limit, "limit", "n", 0, "maximum sessions to return, 0 for all")
	return cmd
}

// search runs q and pairs each session with the messages that matched.
func (a *App) search(ctx context.Context, q storage.SearchQuery) ([]searchHit, error) {
	sessions, err := a.store.Search.Find(ctx, q)
	if err != nil {
		return nil, err
	}

	hits := make([]searchHit, 0, len(sessions))
	for _, s := range sessions {
		hit := searchHit{Session: s, Matches: []messageMatch{}}
		if q.Titles {
			hit.TitleMatch = storage.TitleMatches(s.Title, q.Terms)
		}
		if q.Content {
			msgs, err := a.store.Messages.ListOrdered(ctx, s.ID)
			if err != nil {
				return nil, err
			}
			for _, m := range storage.MatchingMessages(msgs, q.Terms) {
				hit.Matches = append(hit.Matches, messageMatch{
					Index:   m.Index,
					Role:    m.Role,
					Snippet: snippet(m, 100),
				})
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func writeSearchHits(w io.Writer, hits []searchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No matching sessions."))
		return
	}
	for _, hit := range hits {
		fmt.Fprintln(w, summaryLine(hit.Session, titleWidth))
		for i, m := range hit.Matches {
			if i == maxSnippets {
				fmt.Fprintf(w, "      %s\n", DimStyle.Render(fmt.Sprintf("... %d more", len(hit.Matches)-maxSnippets)))
				break
			}
			fmt.Fprintf(w, "      %s %s %s\n",
				DimStyle.Render(fmt.Sprintf("#%d", m.Index)),
				renderRole(string(m.Role), m.Role.DisplayName()+":"),
				m.Snippet,
			)
		}
	}
	fmt.Fprintf(w, "\n%s\n", DimStyle.Render(fmt.Sprintf("%d sessions", len(hits))))
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Terminal rendering of sessions and messages.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/chatvault/internal/model"
	"github.com/jeranaias/chatvault/internal/util"
)

// messageRenderer writes messages to the terminal. markdown is nil when
// rendering is disabled or the output is not a terminal.
type messageRenderer struct {
	markdown *glamour.TermRenderer
}

// newMessageRenderer enables markdown only when asked to and when w is a
// terminal, so piped output stays plain.
func newMessageRenderer(w io.Writer, markdown bool) *messageRenderer {
	r := &messageRenderer{}
	if !markdown || !isTerminalWriter(w) {
		return r
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(GetTerminalWidth()-4),
	)
	if err == nil {
		r.markdown = tr
	}
	return r
}

// text renders a text item, falling back to the raw text on failure.
func (r *messageRenderer) text(s string) string {
	if r.markdown == nil {
		return s
	}
	out, err := r.markdown.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

// writeMessage writes a message header followed by each content item.
func (r *messageRenderer) writeMessage(w io.Writer, m model.Message) {
	fmt.Fprintf(w, "%s %s  %s\n",
		DimStyle.Render(fmt.Sprintf("#%d", m.Index)),
		renderRole(string(m.Role), m.Role.DisplayName()),
		DimStyle.Render(formatTime(m.CreatedAt)),
	)
	for _, item := range m.Content {
		fmt.Fprintln(w, r.item(item))
	}
	fmt.Fprintln(w)
}

func (r *messageRenderer) item(item model.ContentItem) string {
	if item.IsOpaque() {
		return DimStyle.Render(fmt.Sprintf("[unsupported %s item]", item.Type))
	}
	switch item.Type {
	case model.ContentText:
		return r.text(item.Text)
	case model.ContentThinking:
		if item.Thinking == nil {
			return DimStyle.Render("[thinking]")
		}
		return DimStyle.Render("[thinking] " + item.Thinking.Text)
	case model.ContentImage:
		if item.Image == nil {
			return DimStyle.Render("[image]")
		}
		return DimStyle.Render(fmt.Sprintf("[image %s, %s]", item.Image.Format, formatBytes(len(item.Image.Data))))
	case model.ContentDocument:
		if item.Document == nil {
			return DimStyle.Render("[document]")
		}
		return DimStyle.Render(fmt.Sprintf("[document %s (%s), %s]",
			item.Document.Name, item.Document.Format, formatBytes(len(item.Document.Data))))
	default:
		return DimStyle.Render(fmt.Sprintf("[%s]", item.Type))
	}
}

// summaryLine renders one session row for list and search output.
func summaryLine(s model.SessionSummary, width int) string {
	title := util.PadRight(util.TruncateWidth(s.Title, width), width)
	line := fmt.Sprintf("  %s %s %s %s",
		ValueStyle.Render(title),
		DimStyle.Render(util.PadRight(fmt.Sprintf("%d msgs", s.MessageCount), 9)),
		DimStyle.Render(util.PadRight(formatAgo(s.LastActive), 16)),
		DimStyle.Render(s.ID),
	)
	if s.IsPrivate {
		line += " " + WarningStyle.Render("[private]")
	}
	return line
}

// snippet returns the first line of a message's searchable text, trimmed
// to width.
func snippet(m model.Message, width int) string {
	return util.TruncateWidth(util.FirstLine(m.Content.SearchableText()), width)
}

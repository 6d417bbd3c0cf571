// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders sessions as Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a session bundle to Markdown.
func (e *MarkdownExporter) Export(bundle *model.ChatExport) ([]byte, error) {
	if err := validate(bundle); err != nil {
		return nil, err
	}
	s := bundle.Session

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title(s)))
		fmt.Fprintf(&sb, "session_id: %s\n", s.ID)
		fmt.Fprintf(&sb, "model: %s\n", escapeYAML(s.Config.ModelID))
		fmt.Fprintf(&sb, "date: %s\n", s.CreatedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", s.LastActive.UTC().Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(bundle.Messages))
		if s.IsPrivate {
			sb.WriteString("private: true\n")
		}
		fmt.Fprintf(&sb, "exported: %s\n", exportedAt(bundle).UTC().Format(time.RFC3339))
		sb.WriteString("generator: chatvault\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title(s)))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		fmt.Fprintf(&sb, "- **Model**: %s\n", s.Config.ModelID)
		fmt.Fprintf(&sb, "- **Temperature**: %g\n", s.Config.Parameters.Temperature)
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(s.CreatedAt))
		fmt.Fprintf(&sb, "- **Last Active**: %s\n", formatTimestamp(s.LastActive))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(bundle.Messages))
		if s.Config.System != "" {
			fmt.Fprintf(&sb, "- **System Prompt**: %s\n", escapeMarkdown(oneLine(s.Config.System)))
		}
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")
	if len(bundle.Messages) == 0 {
		sb.WriteString("_No messages._\n")
	}

	for i, msg := range bundle.Messages {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>#%d %s</sub>\n\n", label, msg.Index, formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s <sub>#%d</sub>\n\n", label, msg.Index)
		}

		sb.WriteString(e.formatContent(msg.Content))
		sb.WriteString("\n\n")

		if i < len(bundle.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from chatvault on %s*\n",
		exportedAt(bundle).UTC().Format("January 2, 2006 at 3:04 PM UTC"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatContent renders items in order. Text is already Markdown and is
// written as is.
func (e *MarkdownExporter) formatContent(content model.Content) string {
	var parts []string
	for _, item := range content {
		if item.IsOpaque() {
			parts = append(parts, fmt.Sprintf("*[%s]*", escapeMarkdown(opaqueLabel(item))))
			continue
		}
		switch item.Type {
		case model.ContentText:
			if t := strings.TrimSpace(item.Text); t != "" {
				parts = append(parts, t)
			}
		case model.ContentThinking:
			if !e.options.IncludeThinking || item.Thinking == nil {
				continue
			}
			parts = append(parts, "<details>\n<summary>Thinking</summary>\n\n"+
				strings.TrimSpace(item.Thinking.Text)+"\n\n</details>")
		case model.ContentImage, model.ContentDocument:
			parts = append(parts, fmt.Sprintf("*[%s]*", escapeMarkdown(attachmentLabel(item))))
		}
	}
	return strings.Join(parts, "\n\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break headings and list items.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML double-quotes values that YAML would otherwise misread.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}

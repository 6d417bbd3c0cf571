// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter renders sessions as one self-contained HTML page. Message
// text is treated as Markdown; raw HTML inside it is dropped.
type HTMLExporter struct {
	options  *Options
	markdown goldmark.Markdown
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options:  opts,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Export converts a session bundle to HTML.
func (e *HTMLExporter) Export(bundle *model.ChatExport) ([]byte, error) {
	if err := validate(bundle); err != nil {
		return nil, err
	}
	s := bundle.Session
	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "    <title>%s</title>\n", html.EscapeString(title(s)))
	sb.WriteString("    <meta name=\"generator\" content=\"chatvault\">\n")
	fmt.Fprintf(&sb, "    <meta name=\"date\" content=\"%s\">\n", s.CreatedAt.UTC().Format(time.RFC3339))
	sb.WriteString(htmlCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n", theme)
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		e.renderHeader(&sb, bundle)
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	if len(bundle.Messages) == 0 {
		sb.WriteString("            <p class=\"empty\">No messages.</p>\n")
	}
	for i := range bundle.Messages {
		if err := e.renderMessage(&sb, &bundle.Messages[i]); err != nil {
			return nil, fmt.Errorf("message %d: %w", bundle.Messages[i].Index, err)
		}
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	fmt.Fprintf(&sb, "            <p>Exported from <strong>chatvault</strong> on %s</p>\n",
		exportedAt(bundle).UTC().Format("January 2, 2006 at 3:04 PM UTC"))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(sb *strings.Builder, bundle *model.ChatExport) {
	s := bundle.Session
	sb.WriteString("        <header class=\"header\">\n")
	fmt.Fprintf(sb, "            <h1>%s</h1>\n", html.EscapeString(title(s)))
	sb.WriteString("            <div class=\"metadata\">\n")
	meta := func(label, value string) {
		fmt.Fprintf(sb, "                <span class=\"meta-item\"><strong>%s:</strong> %s</span>\n", label, html.EscapeString(value))
	}
	meta("Model", s.Config.ModelID)
	meta("Created", formatTimestamp(s.CreatedAt))
	meta("Last active", formatTimestamp(s.LastActive))
	meta("Messages", fmt.Sprint(len(bundle.Messages)))
	if s.IsPrivate {
		sb.WriteString("                <span class=\"meta-item private\">Private</span>\n")
	}
	sb.WriteString("            </div>\n")
	if s.Config.System != "" {
		fmt.Fprintf(sb, "            <details class=\"system\"><summary>System prompt</summary><pre>%s</pre></details>\n",
			html.EscapeString(s.Config.System))
	}
	sb.WriteString("        </header>\n")
}

func (e *HTMLExporter) renderMessage(sb *strings.Builder, msg *model.Message) error {
	fmt.Fprintf(sb, "            <div class=\"message %s-message\" id=\"m%d\">\n", html.EscapeString(string(msg.Role)), msg.Index)

	sb.WriteString("                <div class=\"message-header\">\n")
	fmt.Fprintf(sb, "                    <span class=\"role-label\">%s</span>\n", html.EscapeString(msg.Role.DisplayName()))
	if e.options.IncludeTimestamps {
		fmt.Fprintf(sb, "                    <span class=\"timestamp\">#%d %s</span>\n", msg.Index, formatShortTimestamp(msg.CreatedAt))
	}
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	for _, item := range msg.Content {
		if err := e.renderItem(sb, item); err != nil {
			return err
		}
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("            </div>\n")
	return nil
}

func (e *HTMLExporter) renderItem(sb *strings.Builder, item model.ContentItem) error {
	if item.IsOpaque() {
		fmt.Fprintf(sb, "<p class=\"attachment\">[%s]</p>\n", html.EscapeString(opaqueLabel(item)))
		return nil
	}
	switch item.Type {
	case model.ContentText:
		var buf bytes.Buffer
		if err := e.markdown.Convert([]byte(item.Text), &buf); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		sb.Write(buf.Bytes())
	case model.ContentThinking:
		if !e.options.IncludeThinking || item.Thinking == nil {
			return nil
		}
		fmt.Fprintf(sb, "<details class=\"thinking\"><summary>Thinking</summary><pre>%s</pre></details>\n",
			html.EscapeString(item.Thinking.Text))
	case model.ContentImage:
		if item.Image == nil {
			fmt.Fprintf(sb, "<p class=\"attachment\">[%s]</p>\n", html.EscapeString(attachmentLabel(item)))
			return nil
		}
		fmt.Fprintf(sb, "<figure class=\"attachment\"><img alt=\"%s\" src=\"data:image/%s;base64,%s\"></figure>\n",
			html.EscapeString(attachmentLabel(item)),
			html.EscapeString(strings.ToLower(item.Image.Format)),
			base64.StdEncoding.EncodeToString(item.Image.Data))
	case model.ContentDocument:
		fmt.Fprintf(sb, "<p class=\"attachment\">[%s]</p>\n", html.EscapeString(attachmentLabel(item)))
	}
	return nil
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const htmlCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, "Fira Code", "Source Code Pro", monospace;
        }
        .dark-theme {
            --bg-primary: #1a1b26; --bg-secondary: #24283b; --bg-tertiary: #414868;
            --text-primary: #c0caf5; --text-muted: #565f89; --border-color: #414868;
            --accent-blue: #7aa2f7; --accent-green: #9ece6a; --accent-purple: #bb9af7;
        }
        .light-theme {
            --bg-primary: #ffffff; --bg-secondary: #f7f8fa; --bg-tertiary: #e1e4e8;
            --text-primary: #24292e; --text-muted: #6a737d; --border-color: #e1e4e8;
            --accent-blue: #0366d6; --accent-green: #22863a; --accent-purple: #6f42c1;
        }
        body { font-family: var(--font-sans); line-height: 1.6; color: var(--text-primary);
               background: var(--bg-primary); padding: 20px; }
        .container { max-width: 900px; margin: 0 auto; background: var(--bg-secondary); border-radius: 12px; overflow: hidden; }
        .header { padding: 32px; background: var(--bg-tertiary); }
        .header h1 { font-size: 28px; margin-bottom: 16px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; }
        .private { color: var(--accent-purple); font-weight: 600; }
        .system { margin-top: 16px; font-size: 14px; }
        .conversation { padding: 24px 32px; }
        .message { margin-bottom: 24px; padding: 20px; border-radius: 8px; border-left: 4px solid var(--accent-purple); }
        .user-message { border-left-color: var(--accent-blue); }
        .assistant-message { border-left-color: var(--accent-green); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 12px; font-size: 14px; }
        .role-label { font-weight: 600; }
        .timestamp { color: var(--text-muted); font-family: var(--font-mono); font-size: 13px; }
        .message-content p { margin-bottom: 12px; }
        pre, code { font-family: var(--font-mono); font-size: 14px; }
        pre { padding: 16px; overflow-x: auto; background: var(--bg-primary); border-radius: 8px; margin: 12px 0; white-space: pre-wrap; }
        .thinking summary, .system summary { cursor: pointer; color: var(--text-muted); }
        .attachment { color: var(--text-muted); font-style: italic; margin: 12px 0; }
        .attachment img { max-width: 100%; border-radius: 8px; }
        .footer { padding: 20px 32px; text-align: center; font-size: 14px; color: var(--text-muted); }
        @media print { body { padding: 0; } .message { page-break-inside: avoid; } }
    </style>
`

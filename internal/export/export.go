// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a session bundle in one transcript format.
type Exporter interface {
	// Export renders the bundle and returns the document bytes.
	Export(bundle *model.ChatExport) ([]byte, error)

	// FileExtension returns the extension including the dot, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the rendered document.
	MimeType() string
}

// Format names a transcript format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "markdown", "md" and "html" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown transcript format %q (want markdown or html)", s)
}

// New returns the exporter for f.
func New(f Format, opts *Options) (Exporter, error) {
	switch f {
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	}
	return nil, fmt.Errorf("unknown transcript format %q", f)
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures rendering.
type Options struct {
	// IncludeMetadata adds the frontmatter or header block (model, dates,
	// message count, privacy).
	IncludeMetadata bool

	// IncludeTimestamps adds the creation time to each message heading.
	IncludeTimestamps bool

	// IncludeThinking renders thinking blocks. They are collapsed in HTML.
	IncludeThinking bool

	// Theme for HTML export ("light" or "dark"). Default: "dark".
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeThinking:   true,
		Theme:             "dark",
	}
}

func validate(bundle *model.ChatExport) error {
	if bundle == nil {
		return fmt.Errorf("session bundle is nil")
	}
	if bundle.Session.ID == "" {
		return fmt.Errorf("session bundle has no session id")
	}
	if bundle.Session.CreatedAt.IsZero() {
		return fmt.Errorf("session has invalid creation timestamp")
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// title falls back to the ID for untitled sessions.
func title(s model.Session) string {
	if strings.TrimSpace(s.Title) == "" {
		return "Session " + s.ID
	}
	return s.Title
}

// exportedAt is the bundle's stamp, or now for bundles built by hand.
func exportedAt(bundle *model.ChatExport) time.Time {
	if bundle.ExportedAt.IsZero() {
		return time.Now().UTC()
	}
	return bundle.ExportedAt
}

// attachmentLabel describes a binary item, e.g. "document notes.pdf (pdf, 12 kB)".
func attachmentLabel(item model.ContentItem) string {
	switch {
	case item.Type == model.ContentImage && item.Image != nil:
		return fmt.Sprintf("image (%s, %s)", item.Image.Format, humanize.Bytes(uint64(len(item.Image.Data))))
	case item.Type == model.ContentDocument && item.Document != nil:
		d := item.Document
		return fmt.Sprintf("document %s (%s, %s)", d.Name, d.Format, humanize.Bytes(uint64(len(d.Data))))
	}
	return string(item.Type)
}

// opaqueLabel names an item kept as raw JSON, e.g. "unsupported audio item".
func opaqueLabel(item model.ContentItem) string {
	kind := string(item.Type)
	if kind == "" {
		kind = "untyped"
	}
	return "unsupported " + kind + " item"
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.UTC().Format("15:04:05")
}

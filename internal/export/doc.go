// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders a stored session as a human-readable transcript.
//
// The JSON bundle produced by the storage layer is the lossless form and is
// what "session import" reads back. This package produces read-only views of
// the same bundle for people:
//
//   - Markdown: YAML frontmatter, one heading per message
//   - HTML: a single self-contained page with embedded CSS and images
//
// # Usage
//
//	bundle, err := store.ExportSession(ctx, id)
//	exp, err := export.New(export.FormatHTML, export.DefaultOptions())
//	data, err := exp.Export(bundle)
package export

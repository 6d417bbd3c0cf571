// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, messages and templates.
//
// These are the plain entities that cross the storage boundary. They carry
// no database or UI types.
//
// # Key Types
//
//   - Session: A conversation with a title, timestamps, config snapshot and privacy flag
//   - SessionSummary: Session annotated with message count and first/last message times
//   - Message: One turn with a role, an ordered Content body and a zero-based index
//   - ContentItem: Tagged union of text, image, document and thinking segments
//   - LLMConfig: Versioned model configuration, serialized as an opaque blob
//   - ChatTemplate: Named LLMConfig; one may be the default
//
// # Usage
//
// Start a session from a preset and build its first message:
//
//	sess := model.NewSession("Trip Planning", model.PresetBalanced.Config())
//	msg := model.NewTextMessage(sess.ID, model.RoleUser, 0, "Let's visit Paris")
//
// Mixed content:
//
//	msg := model.NewMessage(sess.ID, model.RoleUser, 1,
//	    model.TextItem("What is in this picture?"),
//	    model.ImageItem("png", pngBytes),
//	)
package model

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, messages and templates.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// =============================================================================
// CONTENT ITEMS
// =============================================================================

// ContentType is the discriminant of a ContentItem.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentDocument ContentType = "document"
	ContentThinking ContentType = "thinking"
)

// ImageSource holds inline image bytes.
type ImageSource struct {
	Format string `json:"format"` // png, jpeg, gif, webp
	Data   []byte `json:"data"`
}

// DocumentSource holds an attached document.
type DocumentSource struct {
	Name   string `json:"name"`
	Format string `json:"format"` // pdf, txt, md, csv ...
	Data   []byte `json:"data"`
}

// ThinkingBlock is model reasoning emitted alongside a response.
type ThinkingBlock struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

// ContentItem is one element of a message body. Exactly one payload field
// matching Type is set.
//
// An item decoded from JSON that this version cannot interpret (a newer
// kind, or a known kind with a payload that doesn't fit) keeps its original
// encoding in Raw and is written back byte for byte.
type ContentItem struct {
	Type     ContentType     `json:"type"`
	Text     string          `json:"text,omitempty"`
	Image    *ImageSource    `json:"image,omitempty"`
	Document *DocumentSource `json:"document,omitempty"`
	Thinking *ThinkingBlock  `json:"thinking,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// TextItem returns a text content item.
func TextItem(text string) ContentItem {
	return ContentItem{Type: ContentText, Text: text}
}

// ImageItem returns an image content item.
func ImageItem(format string, data []byte) ContentItem {
	return ContentItem{Type: ContentImage, Image: &ImageSource{Format: format, Data: data}}
}

// DocumentItem returns a document content item.
func DocumentItem(name, format string, data []byte) ContentItem {
	return ContentItem{Type: ContentDocument, Document: &DocumentSource{Name: name, Format: format, Data: data}}
}

// ThinkingItem returns a thinking content item.
func ThinkingItem(text, signature string) ContentItem {
	return ContentItem{Type: ContentThinking, Thinking: &ThinkingBlock{Text: text, Signature: signature}}
}

// Validate checks that the payload matches the discriminant.
func (c ContentItem) Validate() error {
	switch c.Type {
	case ContentText:
		if c.Image != nil || c.Document != nil || c.Thinking != nil {
			return fmt.Errorf("text item carries a non-text payload")
		}
	case ContentImage:
		if c.Image == nil {
			return fmt.Errorf("image item has no image payload")
		}
	case ContentDocument:
		if c.Document == nil {
			return fmt.Errorf("document item has no document payload")
		}
	case ContentThinking:
		if c.Thinking == nil {
			return fmt.Errorf("thinking item has no thinking payload")
		}
	default:
		return fmt.Errorf("unknown content type %q", c.Type)
	}
	if c.Raw != nil {
		return fmt.Errorf("%s item holds an undecoded payload", c.Type)
	}
	return nil
}

// IsOpaque reports whether the item was kept as raw JSON on decode.
func (c ContentItem) IsOpaque() bool {
	return c.Raw != nil
}

// MarshalJSON writes Raw verbatim when set and the tagged form otherwise.
func (c ContentItem) MarshalJSON() ([]byte, error) {
	if c.Raw != nil {
		return c.Raw, nil
	}
	type plain ContentItem
	return json.Marshal(plain(c))
}

// UnmarshalJSON accepts any object with a string "type". Items that fail
// Validate are kept with their encoding in Raw rather than rejected.
func (c *ContentItem) UnmarshalJSON(data []byte) error {
	type plain ContentItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		var head struct {
			Type ContentType `json:"type"`
		}
		if herr := json.Unmarshal(data, &head); herr != nil {
			return err
		}
		*c = ContentItem{Type: head.Type, Raw: append(json.RawMessage(nil), data...)}
		return nil
	}
	item := ContentItem(p)
	item.Raw = nil
	if item.Validate() != nil {
		item.Raw = append(json.RawMessage(nil), data...)
	}
	*c = item
	return nil
}

// Content is the ordered body of a message.
type Content []ContentItem

// Validate checks every item strictly. Opaque items fail.
func (c Content) Validate() error {
	for i, item := range c {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("content item %d: %w", i, err)
		}
	}
	return nil
}

// Text joins the text items with blank lines. Non-text items are skipped.
func (c Content) Text() string {
	var parts []string
	for _, item := range c {
		if item.Type == ContentText && item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// SearchableText returns every piece of human-readable text in the body:
// text, thinking and document names.
func (c Content) SearchableText() string {
	var parts []string
	for _, item := range c {
		switch item.Type {
		case ContentText:
			parts = append(parts, item.Text)
		case ContentThinking:
			if item.Thinking != nil {
				parts = append(parts, item.Thinking.Text)
			}
		case ContentDocument:
			if item.Document != nil {
				parts = append(parts, item.Document.Name)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one turn in a session. Messages are immutable once stored.
type Message struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	Index     int       `json:"index"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(sessionID string, role Role, index int, items ...ContentItem) *Message {
	return &Message{
		SessionID: sessionID,
		Role:      role,
		Content:   Content(items),
		Index:     index,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTextMessage creates a message with a single text item.
func NewTextMessage(sessionID string, role Role, index int, text string) *Message {
	return NewMessage(sessionID, role, index, TextItem(text))
}

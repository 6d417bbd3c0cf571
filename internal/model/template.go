// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, messages and templates.
package model

import "time"

// ChatTemplate is a named, reusable configuration. At most one template is
// the default at any time; the store enforces that.
type ChatTemplate struct {
	ID          string    `json:"template_id" toml:"template_id"`
	Name        string    `json:"name" toml:"name"`
	Description string    `json:"description" toml:"description"`
	Config      LLMConfig `json:"config" toml:"config"`
	IsDefault   bool      `json:"is_default" toml:"is_default"`
}

// NewTemplate creates a template with a fresh ID.
func NewTemplate(name, description string, cfg LLMConfig) *ChatTemplate {
	return &ChatTemplate{
		ID:          NewID(),
		Name:        name,
		Description: description,
		Config:      cfg.Clone(),
	}
}

// TemplateExport is the file format for sharing templates.
type TemplateExport struct {
	Templates  []ChatTemplate `json:"templates" toml:"templates"`
	ExportedAt time.Time      `json:"exported_at" toml:"exported_at"`
}

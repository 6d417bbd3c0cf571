// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, messages and templates.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// =============================================================================
// LLM CONFIGURATION
// =============================================================================

// ConfigVersion is the current version of the serialized LLMConfig.
const ConfigVersion = 1

// DefaultModelID is used by the built-in presets.
const DefaultModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"

// InferenceParameters are the sampling settings passed to the model.
type InferenceParameters struct {
	Temperature     float64  `json:"temperature" toml:"temperature"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty" toml:"max_output_tokens,omitempty"`
	TopP            *float64 `json:"top_p,omitempty" toml:"top_p,omitempty"`
	TopK            *int     `json:"top_k,omitempty" toml:"top_k,omitempty"`
}

// LLMConfig is the configuration snapshot embedded in sessions and templates.
// The storage layer round-trips it as an opaque JSON blob.
//
// Version 0 means "unversioned" and is treated as ConfigVersion: blobs are
// always written and read back with a version of at least 1. Every other
// field round-trips unchanged.
type LLMConfig struct {
	Version       int                 `json:"version" toml:"version"`
	ModelID       string              `json:"model_id" toml:"model_id"`
	Parameters    InferenceParameters `json:"parameters" toml:"parameters"`
	StopSequences []string            `json:"stop_sequences,omitempty" toml:"stop_sequences,omitempty"`
	System        string              `json:"system,omitempty" toml:"system,omitempty"`

	// RateLimit is tokens per minute; 0 disables limiting.
	RateLimit int `json:"rate_limit,omitempty" toml:"rate_limit,omitempty"`
}

// Validate checks the configuration for obviously broken values.
func (c LLMConfig) Validate() error {
	if strings.TrimSpace(c.ModelID) == "" {
		return fmt.Errorf("model_id is required")
	}
	p := c.Parameters
	if math.IsNaN(p.Temperature) || p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", p.Temperature)
	}
	if p.TopP != nil && (*p.TopP < 0 || *p.TopP > 1) {
		return fmt.Errorf("top_p must be within [0, 1], got %v", *p.TopP)
	}
	if p.TopK != nil && *p.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", *p.TopK)
	}
	if p.MaxOutputTokens != nil && *p.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive, got %d", *p.MaxOutputTokens)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %d", c.RateLimit)
	}
	return nil
}

// Clone returns a deep copy so templates and sessions never share slices.
func (c LLMConfig) Clone() LLMConfig {
	out := c
	if c.StopSequences != nil {
		out.StopSequences = append([]string(nil), c.StopSequences...)
	}
	if c.Parameters.MaxOutputTokens != nil {
		v := *c.Parameters.MaxOutputTokens
		out.Parameters.MaxOutputTokens = &v
	}
	if c.Parameters.TopP != nil {
		v := *c.Parameters.TopP
		out.Parameters.TopP = &v
	}
	if c.Parameters.TopK != nil {
		v := *c.Parameters.TopK
		out.Parameters.TopK = &v
	}
	return out
}

// MarshalBlob serializes the config for storage. A zero Version is written
// as ConfigVersion, so c.Version is not preserved for that one value.
func (c LLMConfig) MarshalBlob() ([]byte, error) {
	if c.Version < 0 {
		return nil, fmt.Errorf("negative config version %d", c.Version)
	}
	if c.Version == 0 {
		c.Version = ConfigVersion
	}
	return json.Marshal(c)
}

// UnmarshalConfigBlob decodes a stored config blob.
func UnmarshalConfigBlob(data []byte) (LLMConfig, error) {
	var c LLMConfig
	if len(data) == 0 {
		return c, fmt.Errorf("empty config blob")
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode config blob: %w", err)
	}
	if c.Version > ConfigVersion {
		return c, fmt.Errorf("config version %d is newer than supported version %d", c.Version, ConfigVersion)
	}
	if c.Version <= 0 {
		c.Version = ConfigVersion
	}
	return c, nil
}

// =============================================================================
// PRESETS
// =============================================================================

// Preset names a built-in configuration.
type Preset string

const (
	PresetBalanced      Preset = "Balanced"
	PresetDeterministic Preset = "Deterministic"
	PresetCreative      Preset = "Creative"
)

// presetTemperatures is the sampling temperature of each built-in preset.
var presetTemperatures = map[Preset]float64{
	PresetDeterministic: 0.0,
	PresetBalanced:      0.5,
	PresetCreative:      0.9,
}

var presetDescriptions = map[Preset]string{
	PresetDeterministic: "Repeatable answers; temperature 0",
	PresetBalanced:      "General purpose; temperature 0.5",
	PresetCreative:      "Brainstorming and drafting; temperature 0.9",
}

// Presets returns the built-in presets in seeding order. The first is the
// one marked default on a fresh database.
func Presets() []Preset {
	return []Preset{PresetBalanced, PresetDeterministic, PresetCreative}
}

// Config returns the configuration for the preset.
func (p Preset) Config() LLMConfig {
	return LLMConfig{
		Version:    ConfigVersion,
		ModelID:    DefaultModelID,
		Parameters: InferenceParameters{Temperature: presetTemperatures[p]},
	}
}

// Description returns the preset's human-readable description.
func (p Preset) Description() string {
	return presetDescriptions[p]
}

// DefaultConfig is the in-memory fallback used when no default template is
// configured in the store.
func DefaultConfig() LLMConfig {
	return PresetBalanced.Config()
}

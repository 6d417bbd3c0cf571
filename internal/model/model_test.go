// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, messages and templates.
package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ROLE TESTS
// =============================================================================

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{" Assistant ", RoleAssistant, false},
		{"SYSTEM", RoleSystem, false},
		{"tool", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRole(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

// =============================================================================
// CONTENT TESTS
// =============================================================================

func TestContentItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    ContentItem
		wantErr bool
	}{
		{"text", TextItem("hi"), false},
		{"image", ImageItem("png", []byte{1, 2}), false},
		{"document", DocumentItem("notes.md", "md", []byte("x")), false},
		{"thinking", ThinkingItem("hmm", "sig"), false},
		{"image without payload", ContentItem{Type: ContentImage}, true},
		{"text with image payload", ContentItem{Type: ContentText, Image: &ImageSource{}}, true},
		{"unknown type", ContentItem{Type: "audio"}, true},
		{"opaque", ContentItem{Type: ContentText, Text: "x", Raw: json.RawMessage(`{"type":"text","text":7}`)}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.item.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContentItem_UnmarshalKeepsUnknownItems(t *testing.T) {
	data := `[{"type":"video","clip":{"secs":4}},{"type":"image","image":"not an object"},{"type":"text","text":"caption"}]`

	var items Content
	require.NoError(t, json.Unmarshal([]byte(data), &items))
	require.Len(t, items, 3)

	assert.Equal(t, ContentType("video"), items[0].Type)
	assert.True(t, items[0].IsOpaque())
	assert.Equal(t, ContentImage, items[1].Type)
	assert.True(t, items[1].IsOpaque())
	assert.False(t, items[2].IsOpaque())
	assert.Error(t, items.Validate())
	assert.Equal(t, "caption", items.Text())

	out, err := json.Marshal(items)
	require.NoError(t, err)
	assert.JSONEq(t, data, string(out))
}

func TestContentItem_UnmarshalRejectsNonObjects(t *testing.T) {
	var items Content
	assert.Error(t, json.Unmarshal([]byte(`["text"]`), &items))
	assert.Error(t, json.Unmarshal([]byte(`[{"type":`), &items))
}

func TestContent_JSONKeepsDiscriminant(t *testing.T) {
	in := Content{
		TextItem("look"),
		ImageItem("png", []byte{0x89, 0x50}),
		ThinkingItem("considering", ""),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Content
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestContent_Text(t *testing.T) {
	c := Content{
		TextItem("first"),
		ImageItem("png", nil),
		ThinkingItem("hidden", ""),
		TextItem("second"),
	}
	assert.Equal(t, "first\n\nsecond", c.Text())
}

func TestContent_SearchableText(t *testing.T) {
	c := Content{
		TextItem("Paris"),
		ThinkingItem("itinerary", ""),
		DocumentItem("louvre.pdf", "pdf", nil),
		ImageItem("png", []byte("binary")),
	}
	got := c.SearchableText()
	for _, want := range []string{"Paris", "itinerary", "louvre.pdf"} {
		assert.True(t, strings.Contains(got, want), "missing %q in %q", want, got)
	}
	assert.NotContains(t, got, "binary")
}

func TestContent_SearchableTextNilPayloads(t *testing.T) {
	c := Content{
		{Type: ContentThinking},
		{Type: ContentDocument},
		{Type: ContentImage},
		TextItem("still here"),
	}
	assert.NotPanics(t, func() {
		assert.Equal(t, "still here", c.SearchableText())
	})
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestLLMConfig_Validate(t *testing.T) {
	topP := 1.5
	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr bool
	}{
		{"preset", PresetCreative.Config(), false},
		{"missing model", LLMConfig{Parameters: InferenceParameters{Temperature: 0.5}}, true},
		{"temperature too high", LLMConfig{ModelID: "m", Parameters: InferenceParameters{Temperature: 3}}, true},
		{"top_p out of range", LLMConfig{ModelID: "m", Parameters: InferenceParameters{TopP: &topP}}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLLMConfig_BlobRoundTrip(t *testing.T) {
	maxTokens := 1024
	topK := 40
	cfg := LLMConfig{
		ModelID:       "some-model",
		Parameters:    InferenceParameters{Temperature: 0.7, MaxOutputTokens: &maxTokens, TopK: &topK},
		StopSequences: []string{"\n\nHuman:"},
		System:        "Be brief.",
	}

	blob, err := cfg.MarshalBlob()
	require.NoError(t, err)

	got, err := UnmarshalConfigBlob(blob)
	require.NoError(t, err)

	cfg.Version = ConfigVersion
	assert.Equal(t, cfg, got)
}

func TestLLMConfig_BlobVersionNormalisation(t *testing.T) {
	versioned := LLMConfig{Version: ConfigVersion, ModelID: "m", Parameters: InferenceParameters{Temperature: 0.2}}
	blob, err := versioned.MarshalBlob()
	require.NoError(t, err)
	got, err := UnmarshalConfigBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, versioned, got, "an explicit version round-trips field for field")

	unversioned := versioned
	unversioned.Version = 0
	blob, err = unversioned.MarshalBlob()
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"version":1`)
	got, err = UnmarshalConfigBlob(blob)
	require.NoError(t, err)
	assert.Equal(t, versioned, got, "version 0 is written as the current version")

	got, err = UnmarshalConfigBlob([]byte(`{"model_id":"legacy"}`))
	require.NoError(t, err)
	assert.Equal(t, ConfigVersion, got.Version, "a blob without a version reads as the current one")
	assert.Equal(t, "legacy", got.ModelID)

	_, err = LLMConfig{Version: -1, ModelID: "m"}.MarshalBlob()
	assert.Error(t, err)
}

func TestUnmarshalConfigBlob_RejectsNewerVersion(t *testing.T) {
	_, err := UnmarshalConfigBlob([]byte(`{"version":99,"model_id":"m"}`))
	assert.Error(t, err)
}

func TestLLMConfig_CloneIsDeep(t *testing.T) {
	topP := 0.9
	cfg := LLMConfig{ModelID: "m", StopSequences: []string{"a"}, Parameters: InferenceParameters{TopP: &topP}}
	clone := cfg.Clone()

	clone.StopSequences[0] = "b"
	*clone.Parameters.TopP = 0.1

	assert.Equal(t, "a", cfg.StopSequences[0])
	assert.Equal(t, 0.9, *cfg.Parameters.TopP)
}

func TestPresets(t *testing.T) {
	presets := Presets()
	require.Len(t, presets, 3)
	assert.Equal(t, PresetBalanced, presets[0])

	assert.Equal(t, 0.0, PresetDeterministic.Config().Parameters.Temperature)
	assert.Equal(t, 0.5, PresetBalanced.Config().Parameters.Temperature)
	assert.Equal(t, 0.9, PresetCreative.Config().Parameters.Temperature)
	for _, p := range presets {
		assert.NoError(t, p.Config().Validate(), string(p))
		assert.NotEmpty(t, p.Description())
	}
}

// =============================================================================
// CONSTRUCTOR TESTS
// =============================================================================

func TestNewSession(t *testing.T) {
	cfg := PresetBalanced.Config()
	cfg.StopSequences = []string{"stop"}

	s := NewSession("Test", cfg)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Test", s.Title)
	assert.Equal(t, s.CreatedAt, s.LastActive)

	cfg.StopSequences[0] = "changed"
	assert.Equal(t, "stop", s.Config.StopSequences[0], "session must hold its own copy of the config")

	other := NewSession("Test", cfg)
	assert.NotEqual(t, s.ID, other.ID)
}

func TestNewTextMessage(t *testing.T) {
	m := NewTextMessage("s1", RoleUser, 2, "hello")
	assert.Equal(t, "s1", m.SessionID)
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, 2, m.Index)
	assert.Equal(t, "hello", m.Content.Text())
	assert.False(t, m.CreatedAt.IsZero())
}

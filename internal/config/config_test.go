// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Storage.SeedPresets)
	assert.Equal(t, 20, cfg.UI.RecentLimit)
	assert.Equal(t, "chatvault.db", filepath.Base(cfg.Storage.DBPath))
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Storage, cfg.Storage)
}

func TestLoadFromPath_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[storage]
db_path = "/var/lib/chatvault/test.db"
seed_presets = false

[ui]
recent_limit = 50
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chatvault/test.db", cfg.Storage.DBPath)
	assert.False(t, cfg.Storage.SeedPresets)
	assert.Equal(t, 50, cfg.UI.RecentLimit)
	assert.Equal(t, 5000, cfg.Storage.BusyTimeoutMs)
	assert.True(t, cfg.UI.RenderMarkdown)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "load tightens permissions")
}

func TestLoadFromPath_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"chatty\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoadFromPath_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage\n"), 0600))

	_, err := LoadFromPath(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATVAULT_DB_PATH", "/tmp/env.db")
	t.Setenv("CHATVAULT_LOG_LEVEL", "debug")
	t.Setenv("CHATVAULT_SEED_PRESETS", "false")
	t.Setenv("CHATVAULT_RECENT_LIMIT", "7")
	t.Setenv("CHATVAULT_BUSY_TIMEOUT_MS", "250")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.DBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Storage.SeedPresets)
	assert.Equal(t, 7, cfg.UI.RecentLimit)
	assert.Equal(t, int64(250), cfg.Storage.BusyTimeout().Milliseconds())
}

func TestEnvOverrides_BadNumber(t *testing.T) {
	t.Setenv("CHATVAULT_RECENT_LIMIT", "lots")
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Storage.DBPath = "/data/chat.db"
	cfg.Log.Format = "json"
	cfg.UI.IncludePrivate = true
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x.db"), ExpandPath("~/x.db"))
	assert.Equal(t, "/abs/x.db", ExpandPath("/abs/x.db"))
	assert.Equal(t, "rel/x.db", ExpandPath("rel/x.db"))
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("ui.recent_limit", "42"))
	v, err := cfg.Get("ui.recent_limit")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	require.NoError(t, cfg.Set("storage.seed_presets", "false"))
	assert.False(t, cfg.Storage.SeedPresets)

	require.NoError(t, cfg.Set("log.level", "info"))
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Error(t, cfg.Set("ui.recent_limit", "many"))
	assert.Error(t, cfg.Set("nope.key", "x"))
	_, err = cfg.Get("storage")
	assert.Error(t, err)
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "version")
	assert.Contains(t, keys, "storage.db_path")
	assert.Contains(t, keys, "log.add_source")
	assert.Contains(t, keys, "ui.render_markdown")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

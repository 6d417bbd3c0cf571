// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatvault.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - StorageConfig: database location and SQLite tuning
//   - LogConfig: structured logging settings
//   - UIConfig: command line presentation
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CHATVAULT_*)
//   - ~/.chatvault/config.toml, or the file given with --config
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	store, err := storage.Open(ctx, storage.Options{Path: cfg.Storage.DBPath})
package config

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for chatvault.
//
// Configuration file location:
//   - ~/.chatvault/config.toml (or the path given with --config)
//   - Built-in defaults
//
// Environment variables (CHATVAULT_*) override both.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/chatvault/internal/util"
)

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CHATVAULT_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatvault configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// StorageConfig locates and tunes the database.
type StorageConfig struct {
	// DBPath is the SQLite file. A leading "~/" is expanded.
	DBPath string `toml:"db_path" json:"db_path" env:"DB_PATH"`

	// SeedPresets stores the built-in templates on a fresh database.
	SeedPresets bool `toml:"seed_presets" json:"seed_presets" env:"SEED_PRESETS"`

	BusyTimeoutMs int    `toml:"busy_timeout_ms" json:"busy_timeout_ms" env:"BUSY_TIMEOUT_MS"`
	JournalMode   string `toml:"journal_mode" json:"journal_mode" env:"JOURNAL_MODE"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `toml:"level" json:"level" env:"LOG_LEVEL"`    // debug, info, warn, error
	Format    string `toml:"format" json:"format" env:"LOG_FORMAT"` // text, json
	Output    string `toml:"output" json:"output" env:"LOG_OUTPUT"` // stderr, stdout, file
	FilePath  string `toml:"file_path" json:"file_path" env:"LOG_FILE"`
	AddSource bool   `toml:"add_source" json:"add_source" env:"LOG_ADD_SOURCE"`
}

// UIConfig holds command line presentation settings.
type UIConfig struct {
	RecentLimit    int  `toml:"recent_limit" json:"recent_limit" env:"RECENT_LIMIT"`
	IncludePrivate bool `toml:"include_private" json:"include_private" env:"INCLUDE_PRIVATE"`
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown" env:"RENDER_MARKDOWN"`
}

// BusyTimeout returns the busy timeout as a duration.
func (s StorageConfig) BusyTimeout() time.Duration {
	return time.Duration(s.BusyTimeoutMs) * time.Millisecond
}

// Default returns a configuration with default values.
func Default() *Config {
	dbPath := filepath.Join(".chatvault", "chatvault.db")
	if dir, err := ConfigDir(); err == nil {
		dbPath = filepath.Join(dir, "chatvault.db")
	}

	return &Config{
		Version: CurrentVersion,
		Storage: StorageConfig{
			DBPath:        dbPath,
			SeedPresets:   true,
			BusyTimeoutMs: 5000,
			JournalMode:   "WAL",
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		UI: UIConfig{
			RecentLimit:    20,
			IncludePrivate: false,
			RenderMarkdown: true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the chatvault configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatvault"), nil
}

// ConfigPath returns the path to the default TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ExpandPath replaces a leading "~/" with the home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ensureSecurePermissions tightens an existing config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the default config file if it exists, then applies environment
// overrides and validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from path. A missing file is not an
// error: defaults are used instead.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	return finish(cfg)
}

// LoadTOML decodes path on top of cfg. Keys absent from the file keep their
// current values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return fillDefaults(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults and expands paths.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Storage
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = defaults.Storage.DBPath
	}
	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
	if cfg.Storage.BusyTimeoutMs == 0 {
		cfg.Storage.BusyTimeoutMs = defaults.Storage.BusyTimeoutMs
	}
	if cfg.Storage.JournalMode == "" {
		cfg.Storage.JournalMode = defaults.Storage.JournalMode
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Log.Format
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = defaults.Log.Output
	}
	cfg.Log.FilePath = ExpandPath(cfg.Log.FilePath)

	// UI
	if cfg.UI.RecentLimit == 0 {
		cfg.UI.RecentLimit = defaults.UI.RecentLimit
	}

	return nil
}

// ApplyEnvOverrides applies CHATVAULT_* environment variables. Variables that
// are unset leave the current values alone.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# chatvault configuration file\n")
	buf.WriteString("# Generated by chatvault - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validLevels       = []string{"debug", "info", "warn", "error"}
	validFormats      = []string{"text", "json"}
	validOutputs      = []string{"stderr", "stdout", "file"}
	validJournalModes = []string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "OFF"}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	oneOf := func(field, value string, allowed []string, fold bool) {
		for _, a := range allowed {
			if value == a || (fold && strings.EqualFold(value, a)) {
				return
			}
		}
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid value '%s', must be one of: %s", value, strings.Join(allowed, ", ")),
		})
	}

	// Storage
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		errs = append(errs, ValidationError{Field: "storage.db_path", Message: "must not be empty"})
	}
	if c.Storage.BusyTimeoutMs < 0 || c.Storage.BusyTimeoutMs > 600000 {
		errs = append(errs, ValidationError{
			Field:   "storage.busy_timeout_ms",
			Message: fmt.Sprintf("must be between 0 and 600000, got %d", c.Storage.BusyTimeoutMs),
		})
	}
	oneOf("storage.journal_mode", c.Storage.JournalMode, validJournalModes, true)

	// Log
	oneOf("log.level", strings.ToLower(c.Log.Level), validLevels, false)
	oneOf("log.format", strings.ToLower(c.Log.Format), validFormats, false)
	oneOf("log.output", strings.ToLower(c.Log.Output), validOutputs, false)
	if strings.EqualFold(c.Log.Output, "file") && strings.TrimSpace(c.Log.FilePath) == "" {
		errs = append(errs, ValidationError{Field: "log.file_path", Message: "required when log.output is 'file'"})
	}

	// UI
	if c.UI.RecentLimit < 1 || c.UI.RecentLimit > 1000 {
		errs = append(errs, ValidationError{
			Field:   "ui.recent_limit",
			Message: fmt.Sprintf("must be between 1 and 1000, got %d", c.UI.RecentLimit),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "storage.db_path").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds a struct field by its toml tag.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	var keys []string
	var walk func(prefix string, t reflect.Type)
	walk = func(prefix string, t reflect.Type) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := strings.Split(f.Tag.Get("toml"), ",")[0]
			if name == "" || name == "-" {
				continue
			}
			if prefix != "" {
				name = prefix + "." + name
			}
			if f.Type.Kind() == reflect.Struct {
				walk(name, f.Type)
				continue
			}
			keys = append(keys, name)
		}
	}
	walk("", reflect.TypeOf(Config{}))
	return keys
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - The "config" command group.
//
// show prints the effective configuration (file, then environment). get and
// set address single values in dot notation; set edits the file only, so
// environment overrides never leak into it.

package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/config"
)

func (a *App) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Show and edit configuration",
		Annotations: map[string]string{annotationNoStore: "true"},
	}
	cmd.AddCommand(
		a.configShowCommand(),
		a.configGetCommand(),
		a.configSetCommand(),
		a.configKeysCommand(),
	)
	return cmd
}

func (a *App) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(a.cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return a.respond(cmd, a.cfg, func(w io.Writer) {
				highlight(w, buf.String(), "toml")
			})
		},
	}
}

func (a *App) configGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print one configuration value",
		Example: `  $ chatvault config get storage.db_path
  $ chatvault config get ui.recent_limit`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return usageErrorf("%v", err)
			}
			return a.respond(cmd, map[string]interface{}{"key": args[0], "value": v}, func(w io.Writer) {
				fmt.Fprintln(w, v)
			})
		},
	}
}

func (a *App) configSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one value in the config file",
		Example: `  $ chatvault config set ui.recent_limit 50
  $ chatvault config set log.level debug`,
		Args: exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.resolvedConfigPath()
			if err != nil {
				return &ConfigError{Err: err}
			}

			cfg := config.Default()
			if err := loadFileOnly(cfg, path); err != nil {
				return &ConfigError{Path: path, Err: err}
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return usageErrorf("%v", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveTOML(cfg, path); err != nil {
				return &ConfigError{Path: path, Err: err}
			}

			v, _ := cfg.Get(args[0])
			data := map[string]interface{}{"key": args[0], "value": v, "path": path}
			return a.respond(cmd, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s = %v (%s)\n", SuccessStyle.Render("Set"), args[0], v, DimStyle.Render(path))
			})
		},
	}
}

func (a *App) configKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List configuration keys",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := config.Keys()
			return a.respond(cmd, keys, func(w io.Writer) {
				for _, k := range keys {
					v, _ := a.cfg.Get(k)
					fmt.Fprintf(w, "%s %v\n", LabelStyle.Width(28).Render(k), v)
				}
			})
		},
	}
}

// loadFileOnly decodes path onto cfg without environment overrides. A
// missing file leaves the defaults.
func loadFileOnly(cfg *config.Config, path string) error {
	if !fileExists(path) {
		return nil
	}
	return config.LoadTOML(cfg, path)
}

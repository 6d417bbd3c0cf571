// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// status.go - The "status" command.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/storage"
)

// StatusInfo is the payload of "status".
type StatusInfo struct {
	Version         string `json:"version"`
	DatabasePath    string `json:"database_path"`
	DatabaseBytes   int64  `json:"database_bytes"`
	Sessions        int    `json:"sessions"`
	Templates       int    `json:"templates"`
	DefaultTemplate string `json:"default_template,omitempty"`
	ConfigPath      string `json:"config_path,omitempty"`
	LogLevel        string `json:"log_level"`
}

func (a *App) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show database location, counts and the default template",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.status(cmd)
			if err != nil {
				return err
			}
			return a.respond(cmd, info, func(w io.Writer) { writeStatus(w, info) })
		},
	}
}

func (a *App) status(cmd *cobra.Command) (*StatusInfo, error) {
	ctx := cmd.Context()
	info := &StatusInfo{
		Version:      Version,
		DatabasePath: a.store.Path(),
		LogLevel:     a.cfg.Log.Level,
	}
	if path, err := a.resolvedConfigPath(); err == nil {
		info.ConfigPath = path
	}
	if fi, err := os.Stat(info.DatabasePath); err == nil {
		info.DatabaseBytes = fi.Size()
	}

	var err error
	if info.Sessions, err = a.store.Sessions.Count(ctx); err != nil {
		return nil, err
	}
	if info.Templates, err = a.store.Templates.Count(ctx); err != nil {
		return nil, err
	}
	def, err := a.store.Templates.GetDefault(ctx)
	switch {
	case err == nil:
		info.DefaultTemplate = def.Name
	case !errors.Is(err, storage.ErrNoDefaultConfigured):
		return nil, err
	}
	return info, nil
}

func writeStatus(w io.Writer, info *StatusInfo) {
	fmt.Fprintln(w, TitleStyle.Render("chatvault "+info.Version))
	fmt.Fprintf(w, "%s%s (%s)\n", RenderLabel("Database"), info.DatabasePath, formatBytes(int(info.DatabaseBytes)))
	if info.ConfigPath != "" {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Config"), info.ConfigPath)
	}
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Sessions"), info.Sessions)
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Templates"), info.Templates)
	if info.DefaultTemplate != "" {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Default"), HighlightStyle.Render(info.DefaultTemplate))
	} else {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Default"), WarningStyle.Render("none (Balanced preset is used)"))
	}
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Log level"), info.LogLevel)
}

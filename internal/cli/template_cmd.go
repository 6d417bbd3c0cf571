// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// template_cmd.go - The "template" command group.

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/model"
	"github.com/jeranaias/chatvault/internal/storage"
	"github.com/jeranaias/chatvault/internal/util"
)

func (a *App) templateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates", "tpl"},
		Short:   "Manage configuration templates",
	}
	cmd.AddCommand(
		a.templateListCommand(),
		a.templateShowCommand(),
		a.templateCreateCommand(),
		a.templateUpdateCommand(),
		a.templateDeleteCommand(),
		a.templateSetDefaultCommand(),
		a.templateExportCommand(),
		a.templateImportCommand(),
	)
	return cmd
}

// findTemplate resolves ref as a template name, then as an ID.
func (a *App) findTemplate(ctx context.Context, ref string) (*model.ChatTemplate, error) {
	t, err := a.store.Templates.GetByName(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		if byID, idErr := a.store.Templates.GetByID(ctx, ref); idErr == nil {
			return byID, nil
		}
	}
	return t, err
}

// =============================================================================
// CONFIG FLAGS
// =============================================================================

// configFlags edits an LLMConfig from the command line. Only flags the
// user actually set are applied.
type configFlags struct {
	preset      string
	modelID     string
	temperature float64
	maxTokens   int
	topP        float64
	topK        int
	system      string
	stop        []string
	rateLimit   int
}

func (f *configFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.preset, "preset", "", "start from a built-in preset (Balanced, Deterministic, Creative)")
	fl.StringVar(&f.modelID, "model", "", "model identifier")
	fl.Float64Var(&f.temperature, "temperature", 0, "sampling temperature [0, 2]")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "maximum output tokens")
	fl.Float64Var(&f.topP, "top-p", 0, "nucleus sampling [0, 1]")
	fl.IntVar(&f.topK, "top-k", 0, "top-k sampling")
	fl.StringVar(&f.system, "system", "", "system prompt")
	fl.StringArrayVar(&f.stop, "stop", nil, "stop sequence (repeatable)")
	fl.IntVar(&f.rateLimit, "rate-limit", 0, "tokens per minute, 0 disables")
}

func (f *configFlags) apply(cmd *cobra.Command, cfg *model.LLMConfig) error {
	fl := cmd.Flags()
	if fl.Changed("preset") {
		p, err := parsePreset(f.preset)
		if err != nil {
			return err
		}
		*cfg = p.Config()
	}
	if fl.Changed("model") {
		cfg.ModelID = f.modelID
	}
	if fl.Changed("temperature") {
		cfg.Parameters.Temperature = f.temperature
	}
	if fl.Changed("max-tokens") {
		v := f.maxTokens
		cfg.Parameters.MaxOutputTokens = &v
	}
	if fl.Changed("top-p") {
		v := f.topP
		cfg.Parameters.TopP = &v
	}
	if fl.Changed("top-k") {
		v := f.topK
		cfg.Parameters.TopK = &v
	}
	if fl.Changed("system") {
		cfg.System = f.system
	}
	if fl.Changed("stop") {
		cfg.StopSequences = append([]string(nil), f.stop...)
	}
	if fl.Changed("rate-limit") {
		cfg.RateLimit = f.rateLimit
	}
	if err := cfg.Validate(); err != nil {
		return usageErrorf("invalid configuration: %v", err)
	}
	return nil
}

func parsePreset(name string) (model.Preset, error) {
	var names []string
	for _, p := range model.Presets() {
		if strings.EqualFold(string(p), name) {
			return p, nil
		}
		names = append(names, string(p))
	}
	return "", usageErrorf("unknown preset %q (want one of %s)", name, strings.Join(names, ", "))
}

// =============================================================================
// LIST / SHOW
// =============================================================================

func (a *App) templateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List templates",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := a.store.Templates.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			return a.respond(cmd, templates, func(w io.Writer) {
				if len(templates) == 0 {
					fmt.Fprintln(w, DimStyle.Render("No templates."))
					return
				}
				for _, t := range templates {
					marker := "  "
					if t.IsDefault {
						marker = HighlightStyle.Render("* ")
					}
					fmt.Fprintf(w, "%s%s %s %s\n",
						marker,
						ValueStyle.Render(util.PadRight(t.Name, 20)),
						DimStyle.Render(util.PadRight(fmt.Sprintf("t=%.2f", t.Config.Parameters.Temperature), 8)),
						DimStyle.Render(util.TruncateWidth(t.Description, 50)),
					)
				}
			})
		},
	}
}

func (a *App) templateShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show a template's configuration",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.findTemplate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := toml.NewEncoder(&buf).Encode(t); err != nil {
				return fmt.Errorf("encode template: %w", err)
			}
			return a.respond(cmd, t, func(w io.Writer) {
				highlight(w, buf.String(), "toml")
			})
		},
	}
}

// =============================================================================
// CREATE / UPDATE
// =============================================================================

func (a *App) templateCreateCommand() *cobra.Command {
	var (
		flags       configFlags
		description string
		makeDefault bool
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a template",
		Example: `  $ chatvault template create Research --preset Deterministic --system "Cite sources."
  $ chatvault template create Drafting --temperature 1.1 --max-tokens 4096 --default`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := model.DefaultConfig()
			if err := flags.apply(cmd, &cfg); err != nil {
				return err
			}
			t := model.NewTemplate(args[0], description, cfg)
			if err := a.store.Templates.Store(ctx, t); err != nil {
				return err
			}
			if makeDefault {
				if err := a.store.Templates.SetDefault(ctx, t.ID); err != nil {
					return err
				}
				t.IsDefault = true
			}
			return a.respond(cmd, t, func(w io.Writer) {
				fmt.Fprintf(w, "%s template %s %s\n", SuccessStyle.Render("Created"), t.Name, DimStyle.Render(t.ID))
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&description, "description", "d", "", "template description")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make this the default template")
	return cmd
}

func (a *App) templateUpdateCommand() *cobra.Command {
	var (
		flags       configFlags
		newName     string
		description string
	)
	cmd := &cobra.Command{
		Use:   "update NAME",
		Short: "Change a template's name, description or configuration",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.findTemplate(ctx, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("name") {
				t.Name = newName
			}
			if cmd.Flags().Changed("description") {
				t.Description = description
			}
			if err := flags.apply(cmd, &t.Config); err != nil {
				return err
			}
			if err := a.store.Templates.Update(ctx, t); err != nil {
				return err
			}
			return a.respond(cmd, t, func(w io.Writer) {
				fmt.Fprintf(w, "%s template %s\n", SuccessStyle.Render("Updated"), t.Name)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&newName, "name", "", "new template name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "template description")
	return cmd
}

// =============================================================================
// DELETE / SET-DEFAULT
// =============================================================================

func (a *App) templateDeleteCommand() *cobra.Command {
	var confirmFlag bool
	cmd := &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a template (sessions keep their own copy of its config)",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.findTemplate(ctx, args[0])
			if err != nil {
				return err
			}
			action := fmt.Sprintf("delete template %q", t.Name)
			if t.IsDefault {
				action += " (the current default)"
			}
			ok, err := a.confirm(cmd, confirmFlag, action)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err := a.store.Templates.Delete(ctx, t.ID); err != nil {
				return err
			}
			data := map[string]interface{}{"deleted": t.Name, "was_default": t.IsDefault}
			return a.respond(cmd, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s template %s\n", SuccessStyle.Render("Deleted"), t.Name)
				if t.IsDefault {
					fmt.Fprintln(w, WarningStyle.Render("No default template is set; new sessions use the Balanced preset."))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&confirmFlag, "confirm", false, "skip the confirmation prompt")
	return cmd
}

func (a *App) templateSetDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default NAME",
		Short: "Make a template the default for new sessions",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.findTemplate(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.store.Templates.SetDefault(ctx, t.ID); err != nil {
				return err
			}
			t.IsDefault = true
			return a.respond(cmd, t, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s is now the default template\n", SuccessStyle.Render("OK"), t.Name)
			})
		},
	}
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// formatFor picks the explicit format, or guesses from the file extension.
func formatFor(explicit, path string) (storage.Format, error) {
	if explicit != "" {
		f, err := storage.ParseFormat(explicit)
		if err != nil {
			return "", usageErrorf("%v", err)
		}
		return f, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return storage.FormatTOML, nil
	}
	return storage.FormatJSON, nil
}

func (a *App) templateExportCommand() *cobra.Command {
	var output, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all templates as JSON or TOML",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, output)
			if err != nil {
				return err
			}
			if a.jsonMode && (output == "" || output == "-") {
				var buf bytes.Buffer
				if err := a.store.Templates.Export(cmd.Context(), &buf, storage.FormatJSON); err != nil {
					return err
				}
				return a.respond(cmd, json.RawMessage(buf.Bytes()), nil)
			}
			err = writeOutput(output, cmd.OutOrStdout(), func(w io.Writer) error {
				return a.store.Templates.Export(cmd.Context(), w, f)
			})
			if err != nil || output == "" || output == "-" {
				return err
			}
			return a.respond(cmd, map[string]string{"path": output, "format": string(f)}, func(w io.Writer) {
				fmt.Fprintf(w, "%s templates to %s\n", SuccessStyle.Render("Exported"), output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or toml (default from extension, else json)")
	return cmd
}

func (a *App) templateImportCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import FILE|-",
		Short: "Import templates; names that already exist are skipped",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatFor(format, args[0])
			if err != nil {
				return err
			}
			r, err := openInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer r.Close()

			result, err := a.store.Templates.Import(cmd.Context(), r, f)
			if err != nil {
				return err
			}
			return a.respond(cmd, result, func(w io.Writer) {
				fmt.Fprintf(w, "%s %d templates\n", SuccessStyle.Render("Imported"), len(result.Imported))
				if len(result.Skipped) > 0 {
					fmt.Fprintf(w, "%s %s (name already exists)\n",
						WarningStyle.Render("Skipped"), strings.Join(result.Skipped, ", "))
				}
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or toml (default from extension, else json)")
	return cmd
}

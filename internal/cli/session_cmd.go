// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - The "session" command group.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/export"
	"github.com/jeranaias/chatvault/internal/model"
	"github.com/jeranaias/chatvault/internal/storage"
	"github.com/jeranaias/chatvault/internal/util"
)

// titleWidth is the title column width in session listings.
const titleWidth = 40

func (a *App) sessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Manage chat sessions",
	}
	cmd.AddCommand(
		a.sessionNewCommand(),
		a.sessionListCommand(),
		a.sessionShowCommand(),
		a.sessionRenameCommand(),
		a.sessionDeleteCommand(),
		a.sessionDeleteAllCommand(),
		a.sessionExportCommand(),
		a.sessionImportCommand(),
		a.sessionPrivateCommand(),
	)
	return cmd
}

// =============================================================================
// NEW
// =============================================================================

func (a *App) sessionNewCommand() *cobra.Command {
	var templateName string
	cmd := &cobra.Command{
		Use:   "new [TITLE...]",
		Short: "Start a session with the default or a named template",
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			m := a.newManager()

			var (
				sess *model.Session
				err  error
			)
			if templateName != "" {
				sess, err = m.StartFromTemplate(cmd.Context(), title, templateName)
			} else {
				sess, err = m.Start(cmd.Context(), title, nil)
			}
			if err != nil {
				return err
			}
			return a.respond(cmd, sess, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s %s\n", SuccessStyle.Render("Created"), sess.Title, DimStyle.Render(sess.ID))
			})
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "template name to copy the configuration from")
	return cmd
}

// =============================================================================
// LIST
// =============================================================================

// sessionListItem is a summary tagged with its recency bucket.
type sessionListItem struct {
	model.SessionSummary
	Bucket util.Bucket `json:"bucket"`
}

func (a *App) sessionListCommand() *cobra.Command {
	var (
		limit          int
		includePrivate bool
		from, to       string
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions grouped by recency",
		Example: `  $ chatvault session list --limit 50
  $ chatvault session list --from 2025-01-01 --to 2025-01-31`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.UI.RecentLimit
			}
			if !cmd.Flags().Changed("all") {
				includePrivate = a.cfg.UI.IncludePrivate
			}

			var (
				summaries []model.SessionSummary
				err       error
			)
			if from != "" || to != "" {
				summaries, err = a.listByDate(cmd, from, to, includePrivate)
			} else {
				summaries, err = a.store.Sessions.ListRecent(cmd.Context(), limit, includePrivate)
			}
			if err != nil {
				return err
			}

			now := time.Now()
			items := make([]sessionListItem, len(summaries))
			for i, s := range summaries {
				items[i] = sessionListItem{SessionSummary: s, Bucket: util.RecencyBucket(s.LastActive, now)}
			}
			return a.respond(cmd, items, func(w io.Writer) { writeSessionList(w, items) })
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list (default ui.recent_limit)")
	cmd.Flags().BoolVarP(&includePrivate, "all", "a", false, "include private sessions")
	cmd.Flags().StringVar(&from, "from", "", "only sessions with messages on or after this date")
	cmd.Flags().StringVar(&to, "to", "", "only sessions with messages on or before this date")
	return cmd
}

func (a *App) listByDate(cmd *cobra.Command, from, to string, includePrivate bool) ([]model.SessionSummary, error) {
	start, end, err := parseRange(from, to)
	if err != nil {
		return nil, err
	}
	summaries, err := a.store.Sessions.ListByDateRange(cmd.Context(), start, end)
	if err != nil {
		return nil, err
	}
	if includePrivate {
		return summaries, nil
	}
	public := summaries[:0]
	for _, s := range summaries {
		if !s.IsPrivate {
			public = append(public, s)
		}
	}
	return public, nil
}

func writeSessionList(w io.Writer, items []sessionListItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No sessions."))
		return
	}
	var current util.Bucket
	for _, item := range items {
		if item.Bucket != current {
			if current != "" {
				fmt.Fprintln(w)
			}
			current = item.Bucket
			fmt.Fprintln(w, SectionStyle.Render(string(current)))
		}
		fmt.Fprintln(w, summaryLine(item.SessionSummary, titleWidth))
	}
}

// =============================================================================
// SHOW
// =============================================================================

// sessionDetail is the JSON payload of "session show".
type sessionDetail struct {
	Session  *model.SessionSummary `json:"session"`
	Messages []model.Message       `json:"messages"`
}

func (a *App) sessionShowCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show a session and its messages",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			info, err := a.store.Sessions.Info(ctx, args[0])
			if err != nil {
				return err
			}
			msgs, err := a.store.Messages.ListOrdered(ctx, info.ID)
			if err != nil {
				return err
			}

			return a.respond(cmd, sessionDetail{Session: info, Messages: msgs}, func(w io.Writer) {
				writeSessionHeader(w, info)
				r := newMessageRenderer(w, a.cfg.UI.RenderMarkdown && !raw)
				for _, m := range msgs {
					r.writeMessage(w, m)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print text without markdown rendering")
	return cmd
}

func writeSessionHeader(w io.Writer, s *model.SessionSummary) {
	fmt.Fprintln(w, TitleStyle.Render(s.Title))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("ID"), DimStyle.Render(s.ID))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Created"), formatTime(s.CreatedAt))
	fmt.Fprintf(w, "%s%s (%s)\n", RenderLabel("Last active"), formatTime(s.LastActive), formatAgo(s.LastActive))
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Messages"), s.MessageCount)
	fmt.Fprintf(w, "%s%s (temperature %.2f)\n", RenderLabel("Model"), s.Config.ModelID, s.Config.Parameters.Temperature)
	if s.IsPrivate {
		fmt.Fprintf(w, "%s%s\n", RenderLabel("Private"), WarningStyle.Render("yes"))
	}
	fmt.Fprintln(w, RenderSeparator())
}

// =============================================================================
// RENAME / PRIVATE
// =============================================================================

func (a *App) sessionRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename SESSION_ID TITLE...",
		Short: "Rename a session",
		Args:  minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args[1:], " ")
			if err := a.store.Sessions.Rename(cmd.Context(), args[0], title); err != nil {
				return err
			}
			data := map[string]string{"session_id": args[0], "title": title}
			return a.respond(cmd, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Renamed"), title)
			})
		},
	}
}

func (a *App) sessionPrivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "private SESSION_ID on|off",
		Short: "Mark a session private or public",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			private, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			if err := a.store.Sessions.SetPrivate(cmd.Context(), args[0], private); err != nil {
				return err
			}
			data := map[string]interface{}{"session_id": args[0], "is_private": private}
			return a.respond(cmd, data, func(w io.Writer) {
				state := "public"
				if private {
					state = "private"
				}
				fmt.Fprintf(w, "%s session is now %s\n", SuccessStyle.Render("OK"), state)
			})
		},
	}
}

// =============================================================================
// DELETE
// =============================================================================

func (a *App) sessionDeleteCommand() *cobra.Command {
	var confirmFlag bool
	cmd := &cobra.Command{
		Use:     "delete SESSION_ID",
		Aliases: []string{"rm"},
		Short:   "Delete a session and all its messages",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := a.store.Sessions.Get(ctx, args[0])
			if err != nil {
				return err
			}
			ok, err := a.confirm(cmd, confirmFlag, fmt.Sprintf("delete session %q", sess.Title))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err := a.store.Sessions.Delete(ctx, sess.ID); err != nil {
				return err
			}
			return a.respond(cmd, map[string]string{"deleted": sess.ID}, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Deleted"), sess.Title)
			})
		},
	}
	cmd.Flags().BoolVar(&confirmFlag, "confirm", false, "skip the confirmation prompt")
	return cmd
}

func (a *App) sessionDeleteAllCommand() *cobra.Command {
	var confirmFlag bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every session and message (templates are kept)",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := a.store.Sessions.Count(ctx)
			if err != nil {
				return err
			}
			ok, err := a.confirm(cmd, confirmFlag, fmt.Sprintf("delete all %d sessions", n))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err := a.store.Sessions.DeleteAll(ctx); err != nil {
				return err
			}
			return a.respond(cmd, map[string]int{"deleted": n}, func(w io.Writer) {
				fmt.Fprintf(w, "%s %d sessions\n", SuccessStyle.Render("Deleted"), n)
			})
		},
	}
	cmd.Flags().BoolVar(&confirmFlag, "confirm", false, "skip the confirmation prompt")
	return cmd
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

func (a *App) sessionExportCommand() *cobra.Command {
	var output, format, theme string
	var noThinking bool
	cmd := &cobra.Command{
		Use:   "export SESSION_ID",
		Short: "Export a session as JSON, Markdown or HTML",
		Long: `Export a session and its messages. JSON is the lossless form read back by
"session import"; markdown and html are read-only transcripts. The format
defaults to the output file extension, then JSON.`,
		Example: `  $ chatvault session export 3f2a... -o trip.json
  $ chatvault session export 3f2a... -o trip.html --theme light
  $ chatvault session export 3f2a... --format markdown > trip.md`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := transcriptFor(format, output, theme, noThinking)
			if err != nil {
				return err
			}
			bundle, err := a.store.ExportSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			toStdout := output == "" || output == "-"

			var doc []byte
			if exp != nil {
				if doc, err = exp.Export(bundle); err != nil {
					return err
				}
			}

			// JSON mode without a file wraps the export in the envelope.
			if a.jsonMode && toStdout {
				if exp == nil {
					return a.respond(cmd, bundle, nil)
				}
				return a.respond(cmd, map[string]interface{}{
					"session_id": bundle.Session.ID,
					"mime_type":  exp.MimeType(),
					"content":    string(doc),
				}, nil)
			}

			err = writeOutput(output, cmd.OutOrStdout(), func(w io.Writer) error {
				if exp != nil {
					_, err := w.Write(doc)
					return err
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(bundle)
			})
			if err != nil {
				return err
			}
			if toStdout {
				return nil
			}
			data := map[string]interface{}{
				"session_id": bundle.Session.ID,
				"messages":   len(bundle.Messages),
				"path":       output,
			}
			return a.respond(cmd, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s %d messages to %s\n", SuccessStyle.Render("Exported"), len(bundle.Messages), output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, markdown or html")
	cmd.Flags().StringVar(&theme, "theme", "dark", "html theme: dark or light")
	cmd.Flags().BoolVar(&noThinking, "no-thinking", false, "omit thinking blocks from transcripts")
	return cmd
}

// transcriptFor picks the transcript exporter from --format or the output
// extension. It returns nil for the JSON bundle.
func transcriptFor(format, output, theme string, noThinking bool) (export.Exporter, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(output)) {
		case ".md", ".markdown":
			format = string(export.FormatMarkdown)
		case ".html", ".htm":
			format = string(export.FormatHTML)
		default:
			return nil, nil
		}
	}
	if strings.EqualFold(format, "json") {
		return nil, nil
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, usageErrorf("%v", err)
	}
	if theme != "dark" && theme != "light" {
		return nil, usageErrorf("unknown theme %q (want dark or light)", theme)
	}
	opts := export.DefaultOptions()
	opts.Theme = theme
	opts.IncludeThinking = !noThinking
	return export.New(f, opts)
}

func (a *App) sessionImportCommand() *cobra.Command {
	var newID bool
	cmd := &cobra.Command{
		Use:   "import FILE|-",
		Short: "Import a session exported with \"session export\"",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer r.Close()

			var bundle model.ChatExport
			if err := json.NewDecoder(r).Decode(&bundle); err != nil {
				return usageErrorf("invalid export file: %v", err)
			}
			sess, err := a.store.ImportSession(cmd.Context(), &bundle, storage.ImportOptions{NewID: newID})
			if err != nil {
				return err
			}
			data := map[string]interface{}{"session": sess, "messages": len(bundle.Messages)}
			return a.respond(cmd, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s (%d messages) %s\n",
					SuccessStyle.Render("Imported"), sess.Title, len(bundle.Messages), DimStyle.Render(sess.ID))
			})
		},
	}
	cmd.Flags().BoolVar(&newID, "new-id", false, "assign a fresh session ID")
	return cmd
}

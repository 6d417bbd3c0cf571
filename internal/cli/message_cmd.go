// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// message_cmd.go - The "message" command group.

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/model"
)

func (a *App) messageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Append, edit and delete messages in a session",
	}
	cmd.AddCommand(
		a.messageAppendCommand(),
		a.messageEditCommand(),
		a.messageDeleteCommand(),
		a.messageTruncateCommand(),
	)
	return cmd
}

// attachmentFlags collects non-text content for append and edit.
type attachmentFlags struct {
	thinking  string
	documents []string
	images    []string
}

func (f *attachmentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.thinking, "thinking", "", "reasoning text stored before the message text")
	cmd.Flags().StringArrayVar(&f.documents, "document", nil, "attach a document file (repeatable)")
	cmd.Flags().StringArrayVar(&f.images, "image", nil, "attach an image file (repeatable)")
}

func (f *attachmentFlags) empty() bool {
	return f.thinking == "" && len(f.documents) == 0 && len(f.images) == 0
}

// items builds the content in stored order: thinking, text, documents,
// images.
func (f *attachmentFlags) items(text string) ([]model.ContentItem, error) {
	var items []model.ContentItem
	if f.thinking != "" {
		items = append(items, model.ThinkingItem(f.thinking, ""))
	}
	if text != "" {
		items = append(items, model.TextItem(text))
	}
	for _, path := range f.documents {
		data, format, err := readAttachment(path)
		if err != nil {
			return nil, err
		}
		items = append(items, model.DocumentItem(filepath.Base(path), format, data))
	}
	for _, path := range f.images {
		data, format, err := readAttachment(path)
		if err != nil {
			return nil, err
		}
		items = append(items, model.ImageItem(format, data))
	}
	if len(items) == 0 {
		return nil, usageErrorf("message has no content")
	}
	return items, nil
}

// readAttachment reads path and derives its format from the extension.
func readAttachment(path string) ([]byte, string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read attachment: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "bin"
	}
	return data, format, nil
}

// =============================================================================
// APPEND / EDIT
// =============================================================================

func (a *App) messageAppendCommand() *cobra.Command {
	var attach attachmentFlags
	cmd := &cobra.Command{
		Use:   "append SESSION_ID ROLE [TEXT...]",
		Short: "Append a message to the end of a session",
		Long: `Append a message to the end of a session. ROLE is "user" or
"assistant". Without TEXT (or with "-") the text is read from stdin.`,
		Example: `  $ chatvault message append 3f2a... user "What is the capital of France?"
  $ chatvault message append 3f2a... assistant - < answer.md
  $ chatvault message append 3f2a... user "Summarize this" --document report.pdf`,
		Args: minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := model.ParseRole(args[1])
			if err != nil {
				return usageErrorf("%v", err)
			}
			text, err := a.messageText(cmd, args[2:], &attach)
			if err != nil {
				return err
			}
			items, err := attach.items(text)
			if err != nil {
				return err
			}

			m := a.newManager()
			if _, err := m.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			msg, err := m.AppendTurn(cmd.Context(), role, items...)
			if err != nil {
				return err
			}
			return a.respond(cmd, msg, func(w io.Writer) {
				fmt.Fprintf(w, "%s message #%d (%s)\n", SuccessStyle.Render("Appended"), msg.Index, msg.Role.DisplayName())
			})
		},
	}
	attach.register(cmd)
	return cmd
}

func (a *App) messageEditCommand() *cobra.Command {
	var attach attachmentFlags
	cmd := &cobra.Command{
		Use:   "edit SESSION_ID INDEX [TEXT...]",
		Short: "Replace a message, discarding every later message",
		Args:  minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			text, err := a.messageText(cmd, args[2:], &attach)
			if err != nil {
				return err
			}
			items, err := attach.items(text)
			if err != nil {
				return err
			}

			m := a.newManager()
			if _, err := m.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			msg, err := m.EditTurn(cmd.Context(), index, items...)
			if err != nil {
				return err
			}
			return a.respond(cmd, msg, func(w io.Writer) {
				fmt.Fprintf(w, "%s message #%d; session now has %d messages\n",
					SuccessStyle.Render("Edited"), msg.Index, msg.Index+1)
			})
		},
	}
	attach.register(cmd)
	return cmd
}

// messageText reads TEXT from args, or from stdin when no text or
// attachments were given on the command line.
func (a *App) messageText(cmd *cobra.Command, args []string, attach *attachmentFlags) (string, error) {
	if len(args) == 0 && !attach.empty() {
		return "", nil
	}
	return readArgOrStdin(args, cmd.InOrStdin())
}

// =============================================================================
// DELETE / TRUNCATE
// =============================================================================

func (a *App) messageDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete SESSION_ID INDEX",
		Short: "Delete one message and renumber the ones after it",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			m := a.newManager()
			if _, err := m.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := m.DeleteTurn(cmd.Context(), index); err != nil {
				return err
			}
			remaining := len(m.Messages())
			data := map[string]int{"deleted_index": index, "remaining": remaining}
			return a.respond(cmd, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s message #%d; %d remaining\n", SuccessStyle.Render("Deleted"), index, remaining)
			})
		},
	}
}

func (a *App) messageTruncateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "truncate SESSION_ID FROM_INDEX",
		Short: "Delete every message at or after FROM_INDEX",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.store.Messages.DeleteFromIndex(ctx, args[0], index); err != nil {
				return err
			}
			remaining, err := a.store.Messages.Count(ctx, args[0])
			if err != nil {
				return err
			}
			data := map[string]int{"from_index": index, "remaining": remaining}
			return a.respond(cmd, data, func(w io.Writer) {
				fmt.Fprintf(w, "%s from #%d; %d remaining\n", SuccessStyle.Render("Truncated"), index, remaining)
			})
		},
	}
}

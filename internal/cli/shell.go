// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// shell.go - Interactive shell bound to one session.
//
// Plain lines are appended as turns of the current role; slash commands
// edit, delete, rename and inspect. History is kept in the config
// directory with 0600 permissions.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/config"
	"github.com/jeranaias/chatvault/internal/logging"
	"github.com/jeranaias/chatvault/internal/model"
	"github.com/jeranaias/chatvault/internal/session"
	"github.com/jeranaias/chatvault/internal/storage"
	"github.com/jeranaias/chatvault/internal/util"
)

// errQuit ends the shell loop without an error.
var errQuit = errors.New("quit")

// lineReader reads one line of input. *historyLiner implements it.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

func (a *App) shellCommand() *cobra.Command {
	var templateName, title string
	cmd := &cobra.Command{
		Use:   "shell [SESSION_ID]",
		Short: "Interactive shell on a new or existing session",
		Long: `Open an interactive shell. Without SESSION_ID a new session is started
from the default template (or --template). Lines you type are appended as
messages; type /help for commands.`,
		Args: rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.jsonMode {
				return usageErrorf("shell does not support --json")
			}
			ctx := cmd.Context()
			m := a.newManager()

			var err error
			switch {
			case len(args) == 1:
				_, err = m.Load(ctx, args[0])
			case templateName != "":
				_, err = m.StartFromTemplate(ctx, title, templateName)
			default:
				_, err = m.Start(ctx, title, nil)
			}
			if err != nil {
				return err
			}

			line := newHistoryLiner(logging.FromContext(ctx))
			defer line.Close()

			sh := a.newShell(m, cmd.OutOrStdout())
			return sh.run(ctx, line)
		},
	}
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "template for a new session")
	cmd.Flags().StringVar(&title, "title", "", "title for a new session")
	return cmd
}

// =============================================================================
// LINE EDITING
// =============================================================================

// historyLiner is a liner.State that records non-empty input and persists
// it on Close.
type historyLiner struct {
	state *liner.State
	path  string
	log   *slog.Logger
}

func newHistoryLiner(log *slog.Logger) *historyLiner {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)

	h := &historyLiner{state: state, log: log}
	if dir, err := config.ConfigDir(); err == nil {
		h.path = filepath.Join(dir, "shell_history")
		if f, err := os.Open(h.path); err == nil {
			_, _ = state.ReadHistory(f)
			f.Close()
		}
	}
	return h
}

func (h *historyLiner) Prompt(prompt string) (string, error) {
	input, err := h.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		h.state.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (h *historyLiner) Close() {
	if h.path != "" {
		err := util.AtomicWrite(h.path, 0600, func(w io.Writer) error {
			_, err := h.state.WriteHistory(w)
			return err
		})
		if err != nil {
			h.log.Warn("failed to save shell history", "path", h.path, "error", err)
		}
	}
	h.state.Close()
}

// =============================================================================
// SHELL
// =============================================================================

type shell struct {
	app    *App
	m      *session.Manager
	out    io.Writer
	role   model.Role
	render *messageRenderer
}

func (a *App) newShell(m *session.Manager, out io.Writer) *shell {
	return &shell{
		app:    a,
		m:      m,
		out:    out,
		role:   model.RoleUser,
		render: newMessageRenderer(out, a.cfg.UI.RenderMarkdown),
	}
}

func (sh *shell) prompt() string {
	st := sh.m.GetStatus()
	return fmt.Sprintf("%s [%d] %s> ", util.TruncateWidth(st.Title, 24), st.MessageCount, sh.role)
}

// run reads lines until EOF, Ctrl+C, /quit or context cancellation.
func (sh *shell) run(ctx context.Context, in lineReader) error {
	st := sh.m.GetStatus()
	fmt.Fprintf(sh.out, "%s %s %s\n", TitleStyle.Render(st.Title), DimStyle.Render(st.SessionID),
		DimStyle.Render(fmt.Sprintf("(%d messages, /help for commands)", st.MessageCount)))

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := in.Prompt(sh.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(sh.out)
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			err = sh.command(ctx, input)
		} else {
			err = sh.appendTurn(ctx, sh.role, input)
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

func (sh *shell) appendTurn(ctx context.Context, role model.Role, text string) error {
	msg, err := sh.m.AppendTurn(ctx, role, model.TextItem(text))
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, DimStyle.Render(fmt.Sprintf("#%d %s saved", msg.Index, msg.Role)))
	return nil
}

const shellHelp = `Commands:
  TEXT                    append TEXT as the current role
  /user TEXT              append a user message
  /assistant TEXT         append an assistant message
  /role user|assistant    change the role used for plain lines
  /history [N]            show the last N messages (default all)
  /edit N TEXT            replace message N, dropping later messages
  /delete N               delete message N
  /title TITLE            rename the session
  /private on|off         toggle privacy
  /preset NAME            switch the session to a built-in preset
  /search TERM...         search all sessions
  /status                 show session status
  /quit                   leave the shell`

// command executes one slash command. It returns errQuit to end the loop.
func (sh *shell) command(ctx context.Context, input string) error {
	name, rest, _ := strings.Cut(strings.TrimPrefix(input, "/"), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "help", "?":
		fmt.Fprintln(sh.out, shellHelp)
	case "quit", "exit", "q":
		return errQuit
	case "user", "assistant":
		if rest == "" {
			return usageErrorf("usage: /%s TEXT", name)
		}
		return sh.appendTurn(ctx, model.Role(strings.ToLower(name)), rest)
	case "role":
		role, err := model.ParseRole(rest)
		if err != nil {
			return err
		}
		sh.role = role
	case "history":
		return sh.history(rest)
	case "edit":
		idx, text, _ := strings.Cut(rest, " ")
		index, err := parseIndex(idx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return usageErrorf("usage: /edit N TEXT")
		}
		msg, err := sh.m.EditTurn(ctx, index, model.TextItem(strings.TrimSpace(text)))
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, DimStyle.Render(fmt.Sprintf("#%d replaced; later messages removed", msg.Index)))
	case "delete", "del":
		index, err := parseIndex(rest)
		if err != nil {
			return err
		}
		if err := sh.m.DeleteTurn(ctx, index); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, DimStyle.Render(fmt.Sprintf("#%d deleted", index)))
	case "title", "rename":
		if rest == "" {
			return usageErrorf("usage: /title TITLE")
		}
		return sh.m.Rename(ctx, rest)
	case "private":
		on, err := parseOnOff(rest)
		if err != nil {
			return err
		}
		return sh.m.SetPrivate(ctx, on)
	case "preset":
		p, err := parsePreset(rest)
		if err != nil {
			return err
		}
		if err := sh.m.UpdateConfig(ctx, p.Config()); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, DimStyle.Render(fmt.Sprintf("preset %s: %s", p, p.Description())))
	case "search":
		if rest == "" {
			return usageErrorf("usage: /search TERM...")
		}
		hits, err := sh.app.search(ctx, storage.SearchQuery{
			Terms:   strings.Fields(rest),
			Titles:  true,
			Content: true,
		})
		if err != nil {
			return err
		}
		writeSearchHits(sh.out, hits)
	case "status":
		sh.status()
	default:
		return usageErrorf("unknown command /%s (try /help)", name)
	}
	return nil
}

func (sh *shell) history(arg string) error {
	msgs := sh.m.Messages()
	if arg != "" {
		n, err := parseIndex(arg)
		if err != nil {
			return err
		}
		if n < len(msgs) {
			msgs = msgs[len(msgs)-n:]
		}
	}
	if len(msgs) == 0 {
		fmt.Fprintln(sh.out, DimStyle.Render("No messages."))
	}
	for _, m := range msgs {
		sh.render.writeMessage(sh.out, m)
	}
	return nil
}

func (sh *shell) status() {
	st := sh.m.GetStatus()
	fmt.Fprintf(sh.out, "%s%s\n", RenderLabel("Title"), st.Title)
	fmt.Fprintf(sh.out, "%s%s\n", RenderLabel("ID"), st.SessionID)
	fmt.Fprintf(sh.out, "%s%d\n", RenderLabel("Messages"), st.MessageCount)
	fmt.Fprintf(sh.out, "%s%s\n", RenderLabel("Model"), st.ModelID)
	if cur := sh.m.Current(); cur != nil {
		fmt.Fprintf(sh.out, "%s%g\n", RenderLabel("Temperature"), cur.Config.Parameters.Temperature)
	}
	fmt.Fprintf(sh.out, "%s%s\n", RenderLabel("Last active"), formatAgo(st.LastActive))
	fmt.Fprintf(sh.out, "%s%t\n", RenderLabel("Private"), st.IsPrivate)
}

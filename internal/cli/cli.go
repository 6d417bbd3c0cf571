// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and shared plumbing for the chatvault CLI.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/config"
	"github.com/jeranaias/chatvault/internal/logging"
	"github.com/jeranaias/chatvault/internal/session"
	"github.com/jeranaias/chatvault/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// annotationNoStore marks commands that run without opening the database.
const annotationNoStore = "chatvault/no-store"

// App holds the state shared by all commands of one invocation.
type App struct {
	// Global flags
	configPath string
	dbPath     string
	jsonMode   bool

	cfg    *config.Config
	log    *slog.Logger
	store  *storage.Store
	closer io.Closer
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// Run executes one command line against the given streams.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := &App{}
	root := app.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if cerr := app.teardown(); cerr != nil && err == nil {
		err = cerr
	}
	if err == nil {
		return ExitSuccess
	}

	command := root.Name()
	if cmd != nil {
		command = cmd.CommandPath()
	}
	if app.jsonMode {
		_ = NewJSONErrorResponse(command, err).Print(stdout)
	} else {
		fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("[ERROR]"), err)
	}
	return ExitCode(err)
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "chatvault",
		Short:   "Local store for chat sessions, messages and templates",
		Version: fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		Long: `chatvault keeps chat sessions, their ordered messages and reusable
configuration templates in a single SQLite file, with free-text search
over titles and message content.`,
		Example: `  # List recent sessions
  $ chatvault session list

  # Search for sessions mentioning both terms
  $ chatvault search paris budget

  # Open an interactive shell on a new session
  $ chatvault shell`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup(cmd) },
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Reason: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.chatvault/config.toml)")
	flags.StringVar(&a.dbPath, "db", "", "database file (overrides storage.db_path)")
	flags.BoolVar(&a.jsonMode, "json", false, "output JSON")

	root.AddCommand(
		a.sessionCommand(),
		a.messageCommand(),
		a.templateCommand(),
		a.searchCommand(),
		a.shellCommand(),
		a.statusCommand(),
		a.configCommand(),
	)
	return root
}

// setup loads configuration, installs the logger and opens the store.
func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Storage.DBPath = config.ExpandPath(a.dbPath)
	}

	logger, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return &ConfigError{Err: err}
	}
	a.cfg, a.log, a.closer = cfg, logger, closer
	cmd.SetContext(logging.WithContext(cmd.Context(), logger))

	if skipStore(cmd) {
		return nil
	}

	opts := storage.DefaultOptions(cfg.Storage.DBPath)
	opts.SeedPresets = cfg.Storage.SeedPresets
	opts.BusyTimeout = cfg.Storage.BusyTimeout()
	opts.JournalMode = cfg.Storage.JournalMode
	opts.Logger = logger

	store, err := storage.Open(cmd.Context(), opts)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

func (a *App) loadConfig() (*config.Config, error) {
	if a.configPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		return cfg, nil
	}
	path := config.ExpandPath(a.configPath)
	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// resolvedConfigPath returns the file config commands read and write.
func (a *App) resolvedConfigPath() (string, error) {
	if a.configPath != "" {
		return config.ExpandPath(a.configPath), nil
	}
	return config.ConfigPath()
}

func (a *App) teardown() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
		a.closer = nil
	}
	return errors.Join(errs...)
}

func skipStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoStore] == "true" {
			return true
		}
	}
	return false
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// respond writes data as a JSON envelope in JSON mode and calls text
// otherwise.
func (a *App) respond(cmd *cobra.Command, data interface{}, text func(w io.Writer)) error {
	if a.jsonMode {
		return NewJSONResponse(cmd.CommandPath(), data).Print(cmd.OutOrStdout())
	}
	text(cmd.OutOrStdout())
	return nil
}

// newManager returns a session manager bound to the open store.
func (a *App) newManager() *session.Manager {
	return session.NewManager(a.store, session.Options{Logger: a.log})
}

// =============================================================================
// ARGUMENT VALIDATION
// =============================================================================

func exactArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.ExactArgs(n))
}

func minArgs(n int) cobra.PositionalArgs {
	return wrapArgs(cobra.MinimumNArgs(n))
}

func rangeArgs(lo, hi int) cobra.PositionalArgs {
	return wrapArgs(cobra.RangeArgs(lo, hi))
}

func wrapArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return &UsageError{Reason: err.Error()}
		}
		return nil
	}
}

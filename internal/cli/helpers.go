// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Small helpers shared by chatvault commands.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jeranaias/chatvault/internal/util"
)

// =============================================================================
// CONFIRMATION
// =============================================================================

// confirm asks the user to approve a destructive action. --confirm skips
// the prompt; JSON mode and non-terminal stdin require it.
func (a *App) confirm(cmd *cobra.Command, confirmFlag bool, action string) (bool, error) {
	if confirmFlag {
		return true, nil
	}
	if a.jsonMode {
		return false, usageErrorf("confirmation required: use --confirm for destructive actions in JSON mode")
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && !isTerminalWriter(f) {
		return false, usageErrorf("confirmation required but stdin is not a terminal; use --confirm")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Are you sure you want to %s? [y/N]: ", action)
	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes", nil
}

// =============================================================================
// PARSING
// =============================================================================

// parseIndex parses a message index argument.
func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, usageErrorf("invalid message index %q", s)
	}
	return n, nil
}

// parseOnOff parses the argument of toggles such as "session private".
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, usageErrorf("expected on or off, got %q", s)
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// parseDate accepts an RFC3339 timestamp or a local date. A bare date
// covers the whole day: endOfDay selects its last instant. Dates past the
// last storable instant are clamped to it.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			continue
		}
		if layout == "2006-01-02" && endOfDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		switch {
		case t.After(openEnd):
			t = openEnd
		case t.Before(earliest):
			t = earliest
		}
		return t, nil
	}
	return time.Time{}, usageErrorf("invalid date %q (use YYYY-MM-DD or RFC3339)", s)
}

var (
	// openStart and openEnd stand in for a missing side of a date range.
	openStart = time.Unix(0, 0).UTC()
	openEnd   = time.Unix(0, math.MaxInt64).UTC()

	// earliest is the first instant the store can hold.
	earliest = time.Unix(0, math.MinInt64).UTC()
)

// parseRange parses optional --from and --to values into an inclusive range.
func parseRange(from, to string) (time.Time, time.Time, error) {
	start, end := openStart, openEnd
	var err error
	if from != "" {
		if start, err = parseDate(from, false); err != nil {
			return start, end, err
		}
	}
	if to != "" {
		if end, err = parseDate(to, true); err != nil {
			return start, end, err
		}
	}
	if end.Before(start) {
		return start, end, usageErrorf("--to %s is before --from %s", to, from)
	}
	return start, end, nil
}

// readArgOrStdin joins args, or reads all of in when args is empty or "-".
func readArgOrStdin(args []string, in io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// openInput opens path for reading; "-" means stdin.
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeOutput writes through fn to path atomically, or to stdout when path
// is empty or "-".
func writeOutput(path string, stdout io.Writer, fn func(w io.Writer) error) error {
	if path == "" || path == "-" {
		return fn(stdout)
	}
	if err := util.AtomicWrite(filepath.Clean(path), 0600, fn); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatTime renders t in local time.
func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// formatBytes renders a payload size such as "1.2 kB".
func formatBytes(n int) string {
	return humanize.Bytes(uint64(n))
}

// formatAgo renders a relative time such as "3 hours ago".
func formatAgo(t time.Time) string {
	return humanize.Time(t)
}

// highlight writes source with syntax highlighting when w is a color
// terminal, and unchanged otherwise.
func highlight(w io.Writer, source, lexer string) {
	if ColorsEnabled() && isTerminalWriter(w) {
		if err := quick.Highlight(w, source, lexer, "terminal256", "monokai"); err == nil {
			return
		}
	}
	fmt.Fprint(w, source)
}

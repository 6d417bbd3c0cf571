// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error handling and exit codes for chatvault commands.
//
// Commands always return errors; Execute decides how to display them and
// which exit code to use.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/chatvault/internal/config"
	"github.com/jeranaias/chatvault/internal/session"
	"github.com/jeranaias/chatvault/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid arguments or input values
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitNotFoundError indicates a session, message or template was not found
	ExitNotFoundError = 7
	// ExitConflictError indicates a duplicate ID, name or message index
	ExitConflictError = 9
	// ExitStorageError indicates the database could not be opened or written
	ExitStorageError = 10
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports invalid command line input.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return e.Reason
}

// usageErrorf creates a UsageError.
func usageErrorf(format string, args ...any) error {
	return &UsageError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigError wraps a failure to load or validate configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	var (
		usageErr  *UsageError
		configErr *ConfigError
		validErrs config.ValidateErrors
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &usageErr),
		errors.Is(err, storage.ErrInvalidArgument),
		errors.Is(err, session.ErrNoSession):
		return ExitUsageError
	case errors.As(err, &configErr), errors.As(err, &validErrs):
		return ExitConfigError
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrNoDefaultConfigured):
		return ExitNotFoundError
	case errors.Is(err, storage.ErrDuplicateKey),
		errors.Is(err, storage.ErrDuplicateName),
		errors.Is(err, storage.ErrDuplicateIndex):
		return ExitConflictError
	case errors.Is(err, storage.ErrStorageUnavailable),
		errors.Is(err, storage.ErrTransactionFailed):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error handling and exit codes for docchat commands.
//
// Commands always return errors and let Execute decide how to display
// them. Failures of chat operations are already shown as notifications,
// so Execute only prints errors nothing else has reported.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/docchat/internal/api"
	"github.com/jeranaias/docchat/internal/chat"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// errConfig marks configuration failures.
var errConfig = errors.New("configuration error")

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError is a malformed command line.
type UsageError struct {
	Arg    string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Arg, e.Reason)
}

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "upload"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// configError wraps err as a configuration failure.
func configError(err error) error {
	return fmt.Errorf("%w: %w", errConfig, err)
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		uerr *UsageError
		verr *chat.ValidationError
		aerr *api.AuthError
		terr *api.TransportError
	)

	switch {
	case errors.As(err, &uerr), errors.As(err, &verr):
		return ExitUsageError
	case errors.Is(err, errConfig):
		return ExitConfigError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &aerr):
		return ExitAuthError
	case errors.As(err, &terr):
		return ExitNetworkError
	case errors.Is(err, chat.ErrUnknownChat), api.IsNotFound(err):
		return ExitNotFoundError
	}
	return ExitGeneralError
}

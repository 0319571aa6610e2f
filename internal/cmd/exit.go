// Package cmd provides the jslib command implementations.
package cmd

import (
	"errors"

	"github.com/git-pkgs/jslib"
	"github.com/git-pkgs/jslib/internal/config"
)

// Exit codes.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitConfigError indicates the configuration is unusable.
	ExitConfigError = 2

	// ExitNotFound indicates a library or package was not found.
	ExitNotFound = 3

	// ExitOptimizerError indicates the optimizer failed.
	ExitOptimizerError = 4
)

// ExitError carries the exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var verr *config.ValidationError
	var oerr *jslib.OptimizerError
	switch {
	case errors.As(err, &verr), errors.Is(err, jslib.ErrNoRuntime):
		return ExitConfigError
	case errors.As(err, &oerr):
		return ExitOptimizerError
	case errors.Is(err, jslib.ErrNotFound), errors.Is(err, jslib.ErrDescriptorUnavailable):
		return ExitNotFound
	default:
		return ExitGeneralError
	}
}

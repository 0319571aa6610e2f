package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a package, version or library is not found.
	ErrNotFound = errors.New("not found")

	// ErrDescriptorUnavailable is returned when a package descriptor could
	// not be fetched or parsed.
	ErrDescriptorUnavailable = errors.New("package descriptor unavailable")

	// ErrNoEntry is returned when no entry script can be resolved in a package tarball.
	ErrNoEntry = errors.New("no entry script in package")

	// ErrNoDefineCall is returned when a source has no call to define().
	ErrNoDefineCall = errors.New("could not find call to define()")

	// ErrNoRuntime is returned when a bundle or loader tag list is requested
	// without a loader runtime.
	ErrNoRuntime = errors.New("no loader runtime configured")
)

// DescriptorError wraps a failure to obtain the descriptor of name@version.
type DescriptorError struct {
	Name    string
	Version string
	Err     error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("descriptor %s@%s: %v", e.Name, versionOrLatest(e.Version), e.Err)
}

func (e *DescriptorError) Unwrap() []error {
	return []error{ErrDescriptorUnavailable, e.Err}
}

// NotInstalledError is returned when a library is requested which is not installed.
type NotInstalledError struct {
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("library %s is not installed", e.Name)
}

func (e *NotInstalledError) Unwrap() error {
	return ErrNotFound
}

// OptimizerError reports a failed optimizer run. Stderr holds the
// diagnostics the optimizer printed.
type OptimizerError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *OptimizerError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if e.ExitCode != 0 {
		return fmt.Sprintf("optimizer exited with status %d: %s", e.ExitCode, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("optimizer failed: %v: %s", e.Err, msg)
	}
	return fmt.Sprintf("optimizer reported errors: %s", msg)
}

func (e *OptimizerError) Unwrap() error {
	return e.Err
}

func versionOrLatest(v string) string {
	if v == "" {
		return "latest"
	}
	return v
}

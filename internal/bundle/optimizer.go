package bundle

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/git-pkgs/jslib/internal/core"
	"github.com/git-pkgs/jslib/internal/output"
)

var defaultCommand = []string{"node"}

// warnPrefix marks optimizer diagnostics that are not failures.
const warnPrefix = "WARN:"

// Optimizer turns an optimizer script into bundle source.
type Optimizer interface {
	Optimize(ctx context.Context, script string) (string, error)
}

// NodeOptimizer runs the optimizer script with node. The script is written
// to the process's standard input and the bundle is read from its standard
// output.
type NodeOptimizer struct {
	// Command is the interpreter and its arguments. Defaults to "node".
	Command []string

	// Timeout bounds a run. Zero means no limit.
	Timeout time.Duration

	Logger *log.Logger
}

// NewNodeOptimizer returns an optimizer running command, or node when
// command is empty.
func NewNodeOptimizer(command []string, timeout time.Duration) *NodeOptimizer {
	if len(command) == 0 {
		command = defaultCommand
	}
	return &NodeOptimizer{
		Command: command,
		Timeout: timeout,
		Logger:  output.Logger,
	}
}

// Optimize runs the script. Standard error lines starting with "WARN:" are
// logged; any other non-empty line, or a non-zero exit status, fails the run
// with a *core.OptimizerError carrying the whole standard error.
func (o *NodeOptimizer) Optimize(ctx context.Context, script string) (string, error) {
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	logger := o.Logger
	if logger == nil {
		logger = output.Logger
	}

	command := o.Command
	if len(command) == 0 {
		command = defaultCommand
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdin = strings.NewReader(script)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running optimizer", "command", strings.Join(command, " "), "bytes", len(script))
	runErr := cmd.Run()

	var failed bool
	scanner := bufio.NewScanner(bytes.NewReader(stderr.Bytes()))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.TrimSpace(line) == "":
		case strings.HasPrefix(line, warnPrefix):
			logger.Info(strings.TrimSpace(strings.TrimPrefix(line, warnPrefix)), "source", "optimizer")
		default:
			failed = true
		}
	}

	if runErr != nil {
		optErr := &core.OptimizerError{Stderr: stderr.String(), Err: runErr}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			optErr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			optErr.Err = ctxErr
		}
		return "", optErr
	}
	if failed {
		return "", &core.OptimizerError{Stderr: stderr.String()}
	}
	return stdout.String(), nil
}

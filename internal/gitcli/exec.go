package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes git with the given arguments in dir.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout []byte, err error)
}

// CommandError is returned when git exits unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("git %s failed: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s failed: %v: %s", strings.Join(e.Args, " "), e.Err, msg)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs the git binary found on PATH.
type ExecRunner struct {
	Binary string
}

func (r ExecRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	binary := r.Binary
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &CommandError{Args: args, ExitCode: exitErr.ExitCode(), Stderr: stderr.String(), Err: err}
		}
		return out, err
	}
	return out, nil
}

// isExitError reports whether git ran and exited non-zero, as opposed to
// failing to start.
func isExitError(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

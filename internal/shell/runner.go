// Package shell runs commands through a local shell.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// Runner executes commands through a local shell.
type Runner struct {
	// Shell is the shell command to use (e.g., "bash -c", "sh -c").
	// If empty, auto-detection is used.
	Shell string
	// Stdout and Stderr, when set, receive a live copy of the command output.
	Stdout io.Writer
	Stderr io.Writer
	// Stdin is passed to the command when set.
	Stdin io.Reader
}

// NewRunner creates a new shell runner with auto-detected shell.
func NewRunner() *Runner {
	return &Runner{}
}

// Result contains the result of a shell command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError is returned when the command ran and exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("command failed with exit code %d", e.Code)
	}
	return fmt.Sprintf("command failed with exit code %d: %s", e.Code, msg)
}

// Run executes command in workingDir. The command is killed, along with any
// children it spawned, when ctx is done.
func (r *Runner) Run(ctx context.Context, command, workingDir string) (Result, error) {
	var result Result

	shellCmd := r.Shell
	if shellCmd == "" {
		detected, err := DetectShell()
		if err != nil {
			return result, fmt.Errorf("detecting shell: %w", err)
		}
		shellCmd = detected
	}
	shellBin, shellArgs := parseShellCommand(shellCmd)

	args := append(shellArgs, command)
	cmd := exec.CommandContext(ctx, shellBin, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	// Unix-only: own process group so cancellation reaches child processes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = tee(&stdout, r.Stdout)
	cmd.Stderr = tee(&stderr, r.Stderr)
	if r.Stdin != nil {
		cmd.Stdin = r.Stdin
	}

	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("command interrupted: %w", ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &ExitError{Code: result.ExitCode, Stderr: result.Stderr}
		}
		return result, fmt.Errorf("executing command: %w", err)
	}

	return result, nil
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

// parseShellCommand splits a shell command string into binary and arguments.
// Examples:
//   - "bash -c" -> ("bash", ["-c"])
//   - "/bin/sh -c" -> ("/bin/sh", ["-c"])
//   - "bash" -> ("bash", ["-c"])
func parseShellCommand(shell string) (string, []string) {
	parts := strings.Fields(shell)
	if len(parts) == 0 {
		return "sh", []string{"-c"}
	}

	binary := parts[0]
	args := parts[1:]

	if len(args) == 0 {
		args = []string{"-c"}
	}

	return binary, args
}

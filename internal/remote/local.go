package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/grantcarthew/flax/internal/shell"
)

// Local runs commands on the machine flax runs on.
type Local struct {
	runner *shell.Runner
}

// NewLocal creates a local executor. Command output is copied to stdout and
// stderr when they are non-nil.
func NewLocal(stdout, stderr io.Writer) *Local {
	r := shell.NewRunner()
	r.Shell = "bash -c"
	if !shell.IsAvailable("bash") {
		r.Shell = "sh -c"
	}
	r.Stdout = stdout
	r.Stderr = stderr
	return &Local{runner: r}
}

// Name returns "localhost".
func (l *Local) Name() string {
	return "localhost"
}

// Run executes cmd through the local shell.
func (l *Local) Run(ctx context.Context, cmd Command) (Result, error) {
	cmd.NoShell = true
	res, err := l.runner.Run(ctx, cmd.Line(), "")
	result := Result{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}
	if err != nil {
		var exitErr *shell.ExitError
		if errors.As(err, &exitErr) {
			return result, &CommandFailedError{
				Host:     l.Name(),
				Command:  cmd.Script,
				ExitCode: exitErr.Code,
				Stderr:   exitErr.Stderr,
			}
		}
		return result, err
	}
	return result, nil
}

// Upload writes content to a local path.
func (l *Local) Upload(_ context.Context, content io.Reader, path string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("reading upload content: %w", err)
	}
	return os.WriteFile(path, data, mode)
}

// Close is a no-op.
func (l *Local) Close() error {
	return nil
}

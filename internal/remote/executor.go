package remote

import (
	"context"
	"io"
	"os"
)

// Executor runs commands and stores files on one target.
type Executor interface {
	// Name identifies the target in progress output, e.g. a host name or
	// "localhost".
	Name() string
	// Run executes cmd and blocks until it completes. A non-zero exit is
	// reported as a *CommandFailedError with the partial Result.
	Run(ctx context.Context, cmd Command) (Result, error)
	// Upload writes content to path on the target with the given mode,
	// creating parent directories. It runs with the connecting user's rights.
	Upload(ctx context.Context, content io.Reader, path string, mode os.FileMode) error
	// Close releases the connection.
	Close() error
}

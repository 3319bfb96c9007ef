package tasks

import (
	"errors"
	"fmt"
)

// ErrNotSupported marks operations that are deliberately not implemented.
var ErrNotSupported = errors.New("not supported")

// ErrAlreadyInstalled is returned when a repository reference is installed a
// second time in one run with the install variant.
var ErrAlreadyInstalled = errors.New("already installed")

// UnsupportedConfigurationError is returned by restart for a webserver and
// process control combination it has no handling for.
type UnsupportedConfigurationError struct {
	Webserver      string
	ProcessControl string
}

func (e *UnsupportedConfigurationError) Error() string {
	return fmt.Sprintf("unknown web server (%s) and process controller (%s) combination",
		e.Webserver, e.ProcessControl)
}

// InvalidOptionError is returned when a setting holds a value outside its
// allowed set.
type InvalidOptionError struct {
	Key     string
	Value   string
	Allowed []string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid %s %q (allowed: %v)", e.Key, e.Value, e.Allowed)
}

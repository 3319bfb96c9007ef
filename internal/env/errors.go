package env

import (
	"errors"
	"fmt"
	"strings"
)

// MissingDefaultError is returned when a key has no value and no default rule.
type MissingDefaultError struct {
	Key string
}

func (e *MissingDefaultError) Error() string {
	return fmt.Sprintf("no value or default for %q", e.Key)
}

// CyclicDefaultError is returned when default resolution re-enters a key that
// is already being resolved. Chain lists the keys from the first occurrence of
// the repeated key to its re-entry.
type CyclicDefaultError struct {
	Chain []string
}

func (e *CyclicDefaultError) Error() string {
	return "cyclic default: " + strings.Join(e.Chain, " -> ")
}

// TypeError is returned when a value cannot be read as the requested type.
type TypeError struct {
	Key  string
	Want string
	Got  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: want %s, got %T", e.Key, e.Want, e.Got)
}

// IsMissingDefault reports whether err is or wraps a MissingDefaultError.
func IsMissingDefault(err error) bool {
	var target *MissingDefaultError
	return errors.As(err, &target)
}

// IsCyclicDefault reports whether err is or wraps a CyclicDefaultError.
func IsCyclicDefault(err error) bool {
	var target *CyclicDefaultError
	return errors.As(err, &target)
}

// Package config handles configuration discovery and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	internalcue "github.com/grantcarthew/flax/internal/cue"
)

// DirReport is the validation outcome of one configuration directory.
type DirReport struct {
	Scope Scope
	Dir   string
	// Files are the .cue files in Dir, sorted.
	Files []string
	// Keys are the accepted top-level keys the directory defines.
	Keys []string
	// Problems holds at most one error per top-level key, with source
	// context when the position is known.
	Problems []*internalcue.ValidationError
	// Unreadable is set when the files could not be read or evaluated, so
	// Problems holds a single error and Keys is empty.
	Unreadable bool
}

// Valid reports whether the directory holds configuration without problems.
func (d DirReport) Valid() bool {
	return len(d.Files) > 0 && len(d.Problems) == 0
}

// ValidationResult holds a report for each existing configuration directory,
// global first.
type ValidationResult struct {
	Dirs []DirReport
}

// HasErrors reports whether any directory has problems.
func (r ValidationResult) HasErrors() bool {
	for _, d := range r.Dirs {
		if len(d.Problems) > 0 {
			return true
		}
	}
	return false
}

// Err summarises every problem as one error, or returns nil. The source
// context of the first problem is appended.
func (r ValidationResult) Err() error {
	var lines []string
	var first *internalcue.ValidationError
	for _, d := range r.Dirs {
		for _, p := range d.Problems {
			if first == nil {
				first = p
			}
			lines = append(lines, fmt.Sprintf("%s: %v", d.Scope, p))
		}
	}
	if first == nil {
		return nil
	}

	msg := "invalid configuration: " + lines[0]
	if len(lines) > 1 {
		msg += "\n  " + strings.Join(lines[1:], "\n  ")
	}
	if first.Context != "" {
		msg += "\n" + strings.TrimRight(first.Context, "\n")
	}
	return &InvalidError{msg: msg}
}

// InvalidError is returned by ValidationResult.Err.
type InvalidError struct {
	msg string
}

func (e *InvalidError) Error() string { return e.msg }

// ValidateConfig checks the global and local directories that exist. A
// directory without .cue files is no configuration, not an error.
func ValidateConfig(paths Paths) ValidationResult {
	var result ValidationResult
	if paths.GlobalExists {
		result.Dirs = append(result.Dirs, validateDirectory(ScopeGlobal, paths.Global))
	}
	if paths.LocalExists {
		result.Dirs = append(result.Dirs, validateDirectory(ScopeLocal, paths.Local))
	}
	return result
}

func validateDirectory(scope Scope, dir string) DirReport {
	report := DirReport{Scope: scope, Dir: dir}

	files, err := CUEFilesInDir(dir)
	if err != nil {
		report.Unreadable = true
		report.Problems = []*internalcue.ValidationError{{
			Filename: dir,
			Message:  "failed to read directory: " + err.Error(),
		}}
		return report
	}
	report.Files = files
	if len(files) == 0 {
		return report
	}

	v, err := internalcue.NewLoader().LoadSingle(dir)
	if err != nil {
		report.Unreadable = true
		report.Problems = []*internalcue.ValidationError{internalcue.FormatErrorWithContext(err)}
		return report
	}

	validator := internalcue.NewValidator()
	report.Keys = validator.Keys(v)
	for _, p := range validator.Check(v) {
		report.Problems = append(report.Problems, internalcue.FormatErrorWithContext(p))
	}
	return report
}

// CUEFilesInDir returns the .cue files in dir, sorted.
func CUEFilesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".cue") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

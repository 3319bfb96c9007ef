// Package config handles configuration discovery and path resolution.
package config

import (
	"os"
	"path/filepath"
)

// Directory and file names.
const (
	AppName      = "flax"
	LocalDirName = ".flax"
	EnvFileName  = ".env"
	TemplatesDir = "templates"
)

// Scope represents the configuration scope to load.
type Scope int

const (
	// ScopeMerged loads and merges both global and local configs.
	ScopeMerged Scope = iota
	// ScopeGlobal loads only global config (~/.config/flax/).
	ScopeGlobal
	// ScopeLocal loads only local config (./.flax/).
	ScopeLocal
)

// String returns the string representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	default:
		return "merged"
	}
}

// ParseScope parses a string into a Scope value.
func ParseScope(s string) Scope {
	switch s {
	case "global":
		return ScopeGlobal
	case "local":
		return ScopeLocal
	default:
		return ScopeMerged
	}
}

// Paths holds the resolved configuration directory paths.
type Paths struct {
	// Global is the path to the global config directory (~/.config/flax/).
	Global string
	// Local is the path to the local config directory (./.flax/).
	Local string
	// GlobalExists indicates whether the global config directory exists.
	GlobalExists bool
	// LocalExists indicates whether the local config directory exists.
	LocalExists bool
	// WorkDir is the project directory the local paths are relative to.
	WorkDir string
}

// ResolvePaths discovers configuration directories.
// workingDir specifies the base directory for local config resolution.
// If workingDir is empty, the current working directory is used.
func ResolvePaths(workingDir string) (Paths, error) {
	var p Paths

	// Resolve global config path
	globalPath, err := globalConfigDir()
	if err != nil {
		return p, err
	}
	p.Global = globalPath
	p.GlobalExists = dirExists(globalPath)

	// Resolve local config path
	if workingDir == "" {
		workingDir, err = os.Getwd()
		if err != nil {
			return p, err
		}
	}
	p.Local = filepath.Join(workingDir, LocalDirName)
	p.WorkDir = workingDir
	p.LocalExists = dirExists(p.Local)

	return p, nil
}

// globalConfigDir returns the global config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/flax/.
func globalConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppName), nil
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// ForScope returns the paths that should be loaded for the given scope.
// Returns a slice of paths in load order (lowest priority first).
func (p Paths) ForScope(scope Scope) []string {
	switch scope {
	case ScopeGlobal:
		if p.GlobalExists {
			return []string{p.Global}
		}
		return nil
	case ScopeLocal:
		if p.LocalExists {
			return []string{p.Local}
		}
		return nil
	default:
		// Merged: global first (lower priority), then local (higher priority)
		var paths []string
		if p.GlobalExists {
			paths = append(paths, p.Global)
		}
		if p.LocalExists {
			paths = append(paths, p.Local)
		}
		return paths
	}
}

// AnyExists returns true if any configuration directory exists.
func (p Paths) AnyExists() bool {
	return p.GlobalExists || p.LocalExists
}

// EnvFile returns the path of the .env file in the working directory.
func (p Paths) EnvFile() string {
	return filepath.Join(p.WorkDir, EnvFileName)
}

// TemplateDir returns the first templates directory that exists, local
// before global, or "" when neither does.
func (p Paths) TemplateDir() string {
	for _, dir := range []string{p.Local, p.Global} {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, TemplatesDir)
		if dirExists(candidate) {
			return candidate
		}
	}
	return ""
}

// Package temp handles temporary file and directory management.
package temp

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Manager handles temporary file creation and management.
type Manager struct {
	// BaseDir is the base directory for temp files.
	// For dry-run: /tmp
	// For merged requirements: .flax/temp
	BaseDir string
}

// NewDryRunManager creates a manager for dry-run output files.
// Files are written to /tmp/flax-YYYYMMDDHHmmss/
func NewDryRunManager() *Manager {
	return &Manager{BaseDir: os.TempDir()}
}

// NewWorkManager creates a manager for files staged before upload.
// Files are written to .flax/temp/
func NewWorkManager(workingDir string) *Manager {
	return &Manager{BaseDir: filepath.Join(workingDir, ".flax", "temp")}
}

// DryRunDir creates a timestamped directory for dry-run output.
// Returns the directory path.
func (m *Manager) DryRunDir() (string, error) {
	timestamp := time.Now().Format("20060102150405")
	dirPath := filepath.Join(m.BaseDir, "flax-"+timestamp)

	// Handle collision by appending suffix
	suffix := 0
	originalPath := dirPath
	for {
		_, err := os.Stat(dirPath)
		if os.IsNotExist(err) {
			break
		}
		suffix++
		dirPath = fmt.Sprintf("%s-%d", originalPath, suffix)
	}

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("creating dry-run directory: %w", err)
	}

	return dirPath, nil
}

// WriteDryRunFiles writes the recorded command script and the resolved
// settings of a dry run.
func (m *Manager) WriteDryRunFiles(dir, script, settings string) error {
	files := []struct {
		name    string
		content string
		mode    os.FileMode
	}{
		{"commands.sh", script, 0700},
		{"settings.txt", settings, 0600},
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), f.mode); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}

	return nil
}

// EnsureDir ensures the temp directory exists.
func (m *Manager) EnsureDir() error {
	if err := os.MkdirAll(m.BaseDir, 0755); err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	return nil
}

// WriteRequirements writes a merged requirements file for project.
// Returns the path to the written file.
func (m *Manager) WriteRequirements(project, content string) (string, error) {
	if err := m.EnsureDir(); err != nil {
		return "", err
	}

	filePath := filepath.Join(m.BaseDir, deriveFileName("requirements", project))
	if err := os.WriteFile(filePath, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("writing requirements file: %w", err)
	}

	return filePath, nil
}

// deriveFileName creates a filename from a kind and name.
// Examples:
//   - ("requirements", "acme") -> "requirements-acme.txt"
//   - ("requirements", "org/site") -> "requirements-org-site.txt"
func deriveFileName(kind, name string) string {
	// Replace path separators with dashes
	safeName := strings.ReplaceAll(name, "/", "-")
	safeName = strings.ReplaceAll(safeName, "\\", "-")

	// Remove or replace unsafe characters
	reg := regexp.MustCompile(`[^a-zA-Z0-9-_.]`)
	safeName = reg.ReplaceAllString(safeName, "-")

	// Remove consecutive dashes
	for strings.Contains(safeName, "--") {
		safeName = strings.ReplaceAll(safeName, "--", "-")
	}

	safeName = strings.Trim(safeName, "-")
	if safeName == "" {
		return kind + ".txt"
	}

	return fmt.Sprintf("%s-%s.txt", kind, safeName)
}

// Clean removes all files from the temp directory.
func (m *Manager) Clean() error {
	entries, err := os.ReadDir(m.BaseDir)
	if os.IsNotExist(err) {
		return nil // Directory doesn't exist, nothing to clean
	}
	if err != nil {
		return fmt.Errorf("reading temp directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(m.BaseDir, entry.Name())
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// CheckGitignore checks if .flax/temp is in .gitignore.
// Returns true if it appears to be ignored.
func CheckGitignore(workingDir string) bool {
	content, err := os.ReadFile(filepath.Join(workingDir, ".gitignore"))
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(content), "\n") {
		switch strings.TrimSpace(line) {
		case ".flax/temp", ".flax/temp/", ".flax/", ".flax":
			return true
		}
	}

	return false
}

package temp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_DryRunDir(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	m := &Manager{BaseDir: tmpDir}

	t.Run("creates timestamped directory", func(t *testing.T) {
		dir, err := m.DryRunDir()
		if err != nil {
			t.Fatalf("DryRunDir() error = %v", err)
		}

		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat dir error = %v", err)
		}
		if !info.IsDir() {
			t.Error("expected directory")
		}

		base := filepath.Base(dir)
		if !strings.HasPrefix(base, "flax-") {
			t.Errorf("dir name = %q, want prefix 'flax-'", base)
		}
	})

	t.Run("handles collision with suffix", func(t *testing.T) {
		dir1, err := m.DryRunDir()
		if err != nil {
			t.Fatalf("DryRunDir() 1 error = %v", err)
		}
		dir2, err := m.DryRunDir()
		if err != nil {
			t.Fatalf("DryRunDir() 2 error = %v", err)
		}
		if dir1 == dir2 {
			t.Errorf("DryRunDir() returned %q twice", dir1)
		}
	})
}

func TestManager_WriteDryRunFiles(t *testing.T) {
	t.Parallel()
	m := &Manager{BaseDir: t.TempDir()}

	dir, err := m.DryRunDir()
	if err != nil {
		t.Fatalf("DryRunDir() error = %v", err)
	}

	script := "#!/bin/sh\n\n# web1\nsudo -S -p 'sudo password:' -H /bin/bash -l -c 'apt-get install -y nginx'\n"
	settings := "project_name = acme\n"

	if err := m.WriteDryRunFiles(dir, script, settings); err != nil {
		t.Fatalf("WriteDryRunFiles() error = %v", err)
	}

	files := map[string]string{
		"commands.sh":  script,
		"settings.txt": settings,
	}
	for name, expected := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("reading %s: %v", name, err)
			continue
		}
		if string(content) != expected {
			t.Errorf("%s content = %q, want %q", name, string(content), expected)
		}
	}

	info, err := os.Stat(filepath.Join(dir, "commands.sh"))
	if err != nil {
		t.Fatalf("stat commands.sh: %v", err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Errorf("commands.sh mode = %v, want executable", info.Mode())
	}
}

func TestManager_WriteRequirements(t *testing.T) {
	t.Parallel()
	m := NewWorkManager(t.TempDir())

	content := "Django==1.4\n-e git+ssh://git@example.com/acme.git@master#egg=acme\n"
	path, err := m.WriteRequirements("acme", content)
	if err != nil {
		t.Fatalf("WriteRequirements() error = %v", err)
	}

	if filepath.Base(path) != "requirements-acme.txt" {
		t.Errorf("filename = %q, want requirements-acme.txt", filepath.Base(path))
	}
	if !strings.Contains(path, filepath.Join(".flax", "temp")) {
		t.Errorf("path = %q, want under .flax/temp", path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if string(got) != content {
		t.Errorf("content = %q, want %q", got, content)
	}
}

func TestDeriveFileName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind string
		name string
		want string
	}{
		{"requirements", "simple", "requirements-simple.txt"},
		{"requirements", "org/site", "requirements-org-site.txt"},
		{"requirements", "with spaces", "requirements-with-spaces.txt"},
		{"requirements", "special!@#chars", "requirements-special-chars.txt"},
		{"requirements", "--leading-dashes", "requirements-leading-dashes.txt"},
		{"requirements", "", "requirements.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveFileName(tt.kind, tt.name)
			if got != tt.want {
				t.Errorf("deriveFileName(%q, %q) = %q, want %q", tt.kind, tt.name, got, tt.want)
			}
		})
	}
}

func TestManager_Clean(t *testing.T) {
	t.Parallel()
	m := NewWorkManager(t.TempDir())

	if _, err := m.WriteRequirements("one", "a\n"); err != nil {
		t.Fatalf("WriteRequirements 1 error = %v", err)
	}
	if _, err := m.WriteRequirements("two", "b\n"); err != nil {
		t.Fatalf("WriteRequirements 2 error = %v", err)
	}

	entries, err := os.ReadDir(m.BaseDir)
	if err != nil {
		t.Fatalf("ReadDir error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files, got %d", len(entries))
	}

	if err := m.Clean(); err != nil {
		t.Fatalf("Clean() error = %v", err)
	}

	entries, err = os.ReadDir(m.BaseDir)
	if err != nil {
		t.Fatalf("ReadDir after clean error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 files after clean, got %d", len(entries))
	}
}

func TestManager_Clean_NonexistentDir(t *testing.T) {
	t.Parallel()
	m := &Manager{BaseDir: "/nonexistent/path/12345"}
	if err := m.Clean(); err != nil {
		t.Errorf("Clean() on nonexistent dir error = %v", err)
	}
}

func TestCheckGitignore(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	t.Run("returns false when no gitignore", func(t *testing.T) {
		if CheckGitignore(tmpDir) {
			t.Error("expected false when no .gitignore")
		}
	})

	t.Run("returns true when .flax/temp is ignored", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "a")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("creating dir: %v", err)
		}
		content := "node_modules/\n.flax/temp\n*.log"
		if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(content), 0644); err != nil {
			t.Fatalf("writing .gitignore: %v", err)
		}
		if !CheckGitignore(dir) {
			t.Error("expected true when .flax/temp in .gitignore")
		}
	})

	t.Run("returns true when .flax/ is ignored", func(t *testing.T) {
		dir := filepath.Join(tmpDir, "b")
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("creating dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte(".flax/"), 0644); err != nil {
			t.Fatalf("writing .gitignore: %v", err)
		}
		if !CheckGitignore(dir) {
			t.Error("expected true when .flax/ in .gitignore")
		}
	})
}

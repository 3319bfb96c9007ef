package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "flax.cue"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	paths := Paths{
		Global:       filepath.Join(tmp, "global"),
		Local:        filepath.Join(tmp, "local"),
		GlobalExists: true,
		LocalExists:  true,
	}
	writeConfig(t, paths.Global, `
		settings: {site_base: "/srv", branch: "master"}
		hosts: ["web1"]
	`)
	writeConfig(t, paths.Local, `
		settings: {project_name: "acme", branch: "stable"}
		roledefs: webserver: ["web1"]
	`)

	tests := []struct {
		scope       Scope
		wantSources int
		wantBranch  any
		wantHosts   string
	}{
		{ScopeMerged, 2, "stable", "web1"},
		{ScopeGlobal, 1, "master", "web1"},
		{ScopeLocal, 1, "stable", ""},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			loaded, err := Load(paths, tt.scope)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(loaded.Sources) != tt.wantSources {
				t.Errorf("Sources = %v, want %d", loaded.Sources, tt.wantSources)
			}
			if got := loaded.Settings["branch"]; got != tt.wantBranch {
				t.Errorf("branch = %v, want %v", got, tt.wantBranch)
			}
			if got := strings.Join(loaded.Hosts, ","); got != tt.wantHosts {
				t.Errorf("Hosts = %q, want %q", got, tt.wantHosts)
			}
		})
	}
}

func TestLoad_NoConfig(t *testing.T) {
	t.Parallel()
	loaded, err := Load(Paths{Global: t.TempDir()}, ScopeMerged)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Sources) != 0 || len(loaded.Settings) != 0 {
		t.Errorf("Load() = %+v, want empty", loaded)
	}
}

func TestLoad_DecodeError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeConfig(t, dir, `deploy: true`)

	_, err := Load(Paths{Local: dir, LocalExists: true}, ScopeMerged)
	if err == nil || !strings.Contains(err.Error(), "deploy") {
		t.Errorf("Load() error = %v, want unknown key reported", err)
	}
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// setupProject creates a project directory with cueContent as its local
// configuration and isolates HOME and XDG_CONFIG_HOME. An empty cueContent
// writes no configuration.
func setupProject(t *testing.T, cueContent string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("SSH_AUTH_SOCK", "")

	dir := t.TempDir()
	if cueContent == "" {
		return dir
	}
	configDir := filepath.Join(dir, ".flax")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("creating config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "flax.cue"), []byte(cueContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

// executeCmd runs a fresh root command with args.
func executeCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetIn(new(bytes.Buffer))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

const acmeConfig = `
settings: {
	project_name: "acme"
	repository:   "git@example.com:acme/acme.git"
	site_base:    "/srv"
}

roledefs: {
	appserver: ["deploy@web1.example.com", "web2.example.com:2222"]
	dbserver: ["db1.example.com"]
}

hosts: ["deploy@web1.example.com"]
`

package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grantcarthew/flax/internal/remote"
	"github.com/grantcarthew/flax/internal/tasks"
)

// readDryRun returns the commands.sh and settings.txt written under tmp.
func readDryRun(t *testing.T, tmp string) (script, settings string) {
	t.Helper()
	dirs, err := filepath.Glob(filepath.Join(tmp, "flax-*"))
	if err != nil || len(dirs) != 1 {
		t.Fatalf("dry-run directories = %v (err %v), want exactly one", dirs, err)
	}
	s, err := os.ReadFile(filepath.Join(dirs[0], "commands.sh"))
	if err != nil {
		t.Fatalf("reading commands.sh: %v", err)
	}
	st, err := os.ReadFile(filepath.Join(dirs[0], "settings.txt"))
	if err != nil {
		t.Fatalf("reading settings.txt: %v", err)
	}
	return string(s), string(st)
}

func TestRun_DryRunRoles(t *testing.T) {
	dir := setupProject(t, acmeConfig)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	t.Setenv("USER", "ops")

	stdout, _, err := executeCmd(t, "--directory", dir, "run", "--dry-run", "-R", "appserver", "create_project_root")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(stdout, "Executing task 'create_project_root'") {
		t.Errorf("stdout missing task header: %s", stdout)
	}
	if !strings.Contains(stdout, "Dry Run") {
		t.Errorf("stdout missing dry-run summary: %s", stdout)
	}

	script, settings := readDryRun(t, tmp)
	for _, want := range []string{
		"#!/bin/sh",
		"# deploy@web1.example.com",
		"# web2.example.com:2222",
		"mkdir -p /srv/acme",
		"chown deploy:deploy /srv/acme",
		"chown ops:ops /srv/acme",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("commands.sh missing %q:\n%s", want, script)
		}
	}
	if strings.Index(script, "# deploy@web1.example.com") > strings.Index(script, "# web2.example.com:2222") {
		t.Error("hosts should run in role order, web1 before web2")
	}
	for _, want := range []string{"host = web2.example.com", "port = 2222", "project_root = /srv/acme"} {
		if !strings.Contains(settings, want) {
			t.Errorf("settings.txt missing %q:\n%s", want, settings)
		}
	}
}

func TestRun_DryRunMasksPassword(t *testing.T) {
	dir := setupProject(t, acmeConfig)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	_, _, err := executeCmd(t, "--directory", dir, "run", "--dry-run", "create_db_user")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	script, settings := readDryRun(t, tmp)
	if !strings.Contains(script, `ALTER USER "acme" PASSWORD`) || !strings.Contains(script, dryRunPassword) {
		t.Errorf("commands.sh should set a placeholder password:\n%s", script)
	}
	if !strings.Contains(settings, "db_password = "+dryRunPassword) {
		t.Errorf("settings.txt should mask db_password:\n%s", settings)
	}
}

func TestRun_SetOverridesConfig(t *testing.T) {
	dir := setupProject(t, acmeConfig)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	t.Setenv("FLAX_SITE_BASE", "/opt")

	_, _, err := executeCmd(t, "--directory", dir, "run", "--dry-run", "--set", "project_name=widget", "create_project_root")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	script, _ := readDryRun(t, tmp)
	if !strings.Contains(script, "mkdir -p /opt/widget") {
		t.Errorf("commands.sh should use environment and --set values:\n%s", script)
	}
}

func TestRun_Errors(t *testing.T) {
	noHosts := `settings: { project_name: "acme" }`

	tests := []struct {
		name    string
		config  string
		args    []string
		wantErr string
	}{
		{
			name:    "unknown task",
			config:  acmeConfig,
			args:    []string{"run", "--dry-run", "deploy_everything"},
			wantErr: `unknown task "deploy_everything"`,
		},
		{
			name:    "arguments to fixed task",
			config:  acmeConfig,
			args:    []string{"run", "--dry-run", "restart:now"},
			wantErr: "takes no arguments",
		},
		{
			name:    "no hosts",
			config:  noHosts,
			args:    []string{"run", "--dry-run", "restart"},
			wantErr: "no target hosts",
		},
		{
			name:    "unknown role",
			config:  acmeConfig,
			args:    []string{"run", "--dry-run", "-R", "cache", "restart"},
			wantErr: "unknown role(s): cache",
		},
		{
			name:    "invalid set",
			config:  acmeConfig,
			args:    []string{"run", "--dry-run", "--set", "branch", "restart"},
			wantErr: "want key=value",
		},
		{
			name:    "bad host string",
			config:  noHosts,
			args:    []string{"run", "--dry-run", "-H", "web1:notaport", "restart"},
			wantErr: "invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupProject(t, tt.config)
			t.Setenv("TMPDIR", t.TempDir())

			args := append([]string{"--directory", dir}, tt.args...)
			_, _, err := executeCmd(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("run error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRun_UnsupportedRestart(t *testing.T) {
	dir := setupProject(t, acmeConfig)
	t.Setenv("TMPDIR", t.TempDir())

	_, _, err := executeCmd(t, "--directory", dir, "run", "--dry-run", "--set", "webserver=apache", "restart")
	var unsupported *tasks.UnsupportedConfigurationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("run error = %v, want UnsupportedConfigurationError", err)
	}
	if !strings.Contains(err.Error(), "[deploy@web1.example.com]") {
		t.Errorf("error = %q, want the failing host named", err)
	}
}

func TestRun_SSH(t *testing.T) {
	dir := setupProject(t, acmeConfig)

	journal := &remote.Journal{}
	var dialled []remote.SSHConfig
	orig := dialSSH
	dialSSH = func(_ context.Context, cfg remote.SSHConfig) (remote.Executor, error) {
		dialled = append(dialled, cfg)
		return remote.NewRecorder(cfg.Target.String(), journal), nil
	}
	t.Cleanup(func() { dialSSH = orig })

	stdout, _, err := executeCmd(t, "--directory", dir, "run", "-i", "/keys/deploy", "--insecure-host-key", "restart")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	if len(dialled) != 1 {
		t.Fatalf("dialled %d hosts, want 1", len(dialled))
	}
	cfg := dialled[0]
	if cfg.Target.User != "deploy" || cfg.Target.Host != "web1.example.com" {
		t.Errorf("Target = %+v, want deploy@web1.example.com", cfg.Target)
	}
	if len(cfg.KeyFiles) != 1 || cfg.KeyFiles[0] != "/keys/deploy" {
		t.Errorf("KeyFiles = %v, want [/keys/deploy]", cfg.KeyFiles)
	}
	if !cfg.InsecureIgnoreHostKey {
		t.Error("InsecureIgnoreHostKey = false, want true")
	}

	scripts := journal.Scripts()
	if len(scripts) != 1 || scripts[0] != "/usr/bin/supervisorctl restart acme" {
		t.Errorf("scripts = %q, want supervisorctl restart", scripts)
	}
	if !strings.Contains(stdout, "Done.") {
		t.Errorf("stdout missing Done.: %s", stdout)
	}
}

func TestRun_SSHPasswords(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		sets      []string
		wantLogin string
		wantSudo  string
	}{
		{name: "none"},
		{
			name:      "login password used for sudo",
			sets:      []string{"password=hunter2"},
			wantLogin: "hunter2",
			wantSudo:  "hunter2",
		},
		{
			name:      "sudo password from environment",
			env:       map[string]string{"FLAX_SUDO_PASSWORD": "s3cret"},
			sets:      []string{"password=hunter2"},
			wantLogin: "hunter2",
			wantSudo:  "s3cret",
		},
		{
			name:     "sudo password from set",
			sets:     []string{"sudo_password=s3cret"},
			wantSudo: "s3cret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupProject(t, acmeConfig)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var dialled remote.SSHConfig
			orig := dialSSH
			dialSSH = func(_ context.Context, cfg remote.SSHConfig) (remote.Executor, error) {
				dialled = cfg
				return remote.NewRecorder(cfg.Target.String(), nil), nil
			}
			t.Cleanup(func() { dialSSH = orig })

			args := []string{"--directory", dir, "run"}
			for _, set := range tt.sets {
				args = append(args, "--set", set)
			}
			if _, _, err := executeCmd(t, append(args, "restart")...); err != nil {
				t.Fatalf("run error = %v", err)
			}
			if dialled.Password != tt.wantLogin {
				t.Errorf("Password = %q, want %q", dialled.Password, tt.wantLogin)
			}
			if dialled.SudoPassword != tt.wantSudo {
				t.Errorf("SudoPassword = %q, want %q", dialled.SudoPassword, tt.wantSudo)
			}
		})
	}
}

func TestRun_DryRunRolesByBareHost(t *testing.T) {
	dir := setupProject(t, acmeConfig)
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	_, _, err := executeCmd(t, "--directory", dir, "run", "--dry-run", "-H", "deploy@db1.example.com:2200", "install_debs")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	script, _ := readDryRun(t, tmp)
	if !strings.Contains(script, "apt-get install -y postgresql") {
		t.Errorf("commands.sh should install dbserver packages:\n%s", script)
	}
}

func TestRun_SSHDialError(t *testing.T) {
	dir := setupProject(t, acmeConfig)

	orig := dialSSH
	dialSSH = func(context.Context, remote.SSHConfig) (remote.Executor, error) {
		return nil, errors.New("connection refused")
	}
	t.Cleanup(func() { dialSSH = orig })

	_, _, err := executeCmd(t, "--directory", dir, "run", "restart")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("run error = %v, want dial failure", err)
	}
}

func TestFormatSettings(t *testing.T) {
	got := formatSettings("web1", map[string]any{
		"project_name":  "acme",
		"db_password":   "hunter2",
		"sudo_password": "s3cret",
		"branch":        "master",
	})
	want := "# web1\nbranch = master\ndb_password = ********\nproject_name = acme\nsudo_password = ********\n\n"
	if got != want {
		t.Errorf("formatSettings() = %q, want %q", got, want)
	}
}

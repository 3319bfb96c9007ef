package tasks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
	"github.com/grantcarthew/flax/internal/roles"
)

// fixture is a deployment of project "acme" to web1 with recorded executors.
type fixture struct {
	d       *Deployment
	remote  *remote.Recorder
	local   *remote.Recorder
	journal *remote.Journal
	out     *bytes.Buffer
	workDir string
}

func newFixture(t *testing.T, settings map[string]any) *fixture {
	t.Helper()

	workDir := t.TempDir()
	reqDir := filepath.Join(workDir, "requirements")
	if err := os.MkdirAll(reqDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(reqDir, "production.txt"), []byte("Django==1.4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e := env.NewWithDefaults()
	e.Set(env.KeyProjectName, "acme")
	e.Set(env.KeyRepository, "git@example.com/acme.git")
	e.Set(env.KeyHost, "web1")
	e.Set(env.KeyHostString, "web1")
	e.Set(env.KeyUser, "deploy")
	for k, v := range settings {
		e.Set(k, v)
	}

	journal := &remote.Journal{}
	rr := remote.NewRecorder("web1", journal)
	lr := remote.NewRecorder("localhost", journal)
	out := &bytes.Buffer{}

	d := New(Config{
		Env: e,
		Roles: roles.New(map[string][]string{
			roles.DBServer:  {"web1"},
			roles.WebServer: {"web1"},
			roles.AppServer: {"app1"},
			"cache":         {"deploy@cache1"},
		}, roles.WithPackages(map[string][]string{"cache": {"redis-server"}})),
		Remote:  remote.NewShell(rr, out),
		Local:   remote.NewLocalShell(lr, out),
		WorkDir: workDir,
		Out:     out,
	})
	return &fixture{d: d, remote: rr, local: lr, journal: journal, out: out, workDir: workDir}
}

func (f *fixture) scripts() []string {
	return f.journal.Scripts()
}

func (f *fixture) commands() []remote.Command {
	var cmds []remote.Command
	for _, e := range f.journal.Entries {
		if e.Upload == "" {
			cmds = append(cmds, e.Command)
		}
	}
	return cmds
}

func (f *fixture) uploads() []remote.Entry {
	var ups []remote.Entry
	for _, e := range f.journal.Entries {
		if e.Upload != "" {
			ups = append(ups, e)
		}
	}
	return ups
}

// indexOf returns the index of the first script containing s, or -1.
func indexOf(scripts []string, s string) int {
	for i, sc := range scripts {
		if strings.Contains(sc, s) {
			return i
		}
	}
	return -1
}

func TestBootstrap_Order(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if err := f.d.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	scripts := f.scripts()
	markers := []string{
		"apt-get install -y nginx postgresql",
		"mkdir -p /www/acme",
		"chown deploy:deploy /www/acme",
		"virtualenv --distribute /www/acme/venv",
		"pip install --download-cache=~/.pip/cache -U -r /tmp/acme/requirements/production.txt",
		"rm -rf '/tmp/acme'",
		"service postgresql restart",
		"mkdir -p /var/log/www/acme",
		"supervisorctl reload",
	}
	last := -1
	for _, m := range markers {
		i := indexOf(scripts, m)
		if i < 0 {
			t.Fatalf("no command containing %q in:\n%s", m, strings.Join(scripts, "\n"))
		}
		if i <= last {
			t.Errorf("%q ran out of order (index %d, previous %d)", m, i, last)
		}
		last = i
	}
}

func TestBootstrap_StopsOnFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.remote.FailOn("apt-get", 100, "E: Unable to locate package")

	err := f.d.Bootstrap(context.Background())
	var failed *remote.CommandFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Bootstrap() error = %v, want *CommandFailedError", err)
	}
	if n := len(f.scripts()); n != 1 {
		t.Errorf("ran %d commands after failure, want 1", n)
	}
}

func TestInstallDebs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		host       string
		hostString string
		want       string
	}{
		{name: "db and web roles", host: "web1", hostString: "web1", want: "apt-get install -y nginx postgresql"},
		{name: "app role", host: "app1", hostString: "app1", want: "apt-get install -y git python python-psycopg2 python-virtualenv subversion supervisor"},
		{name: "user and port in host string", host: "web1", hostString: "deploy@web1:2222", want: "apt-get install -y nginx postgresql"},
		{name: "roledefs list host string", host: "cache1", hostString: "deploy@cache1", want: "apt-get install -y redis-server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]any{env.KeyHost: tt.host, env.KeyHostString: tt.hostString})
			if err := f.d.InstallDebs(context.Background()); err != nil {
				t.Fatalf("InstallDebs() error = %v", err)
			}
			cmds := f.commands()
			if len(cmds) != 1 {
				t.Fatalf("commands = %d, want 1", len(cmds))
			}
			if cmds[0].Script != tt.want || !cmds[0].Sudo {
				t.Errorf("command = %+v, want sudo %q", cmds[0], tt.want)
			}
		})
	}
}

func TestInstallDebs_NoRolesIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]any{env.KeyHost: "lonely", env.KeyHostString: "deploy@lonely"})

	if err := f.d.InstallDebs(context.Background()); err != nil {
		t.Fatalf("InstallDebs() error = %v", err)
	}
	if n := len(f.journal.Entries); n != 0 {
		t.Errorf("recorded %d entries, want none", n)
	}
	if !strings.Contains(f.out.String(), "no packages to install") {
		t.Errorf("output = %q, want notice", f.out.String())
	}
}

func TestInstallDjango_NotSupported(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if err := f.d.InstallDjango(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Errorf("InstallDjango() error = %v, want ErrNotSupported", err)
	}
}

func TestCreateVirtualenv(t *testing.T) {
	t.Parallel()

	t.Run("runs in project root", func(t *testing.T) {
		f := newFixture(t, nil)
		if err := f.d.CreateVirtualenv(context.Background()); err != nil {
			t.Fatalf("CreateVirtualenv() error = %v", err)
		}
		cmd := f.commands()[0]
		if cmd.Dir != "/www/acme" || cmd.Script != "virtualenv --distribute /www/acme/venv" {
			t.Errorf("command = %+v", cmd)
		}
	})

	t.Run("empty root fails", func(t *testing.T) {
		f := newFixture(t, map[string]any{env.KeyVirtualenvRoot: ""})
		if err := f.d.CreateVirtualenv(context.Background()); err == nil {
			t.Error("CreateVirtualenv() with empty root: expected error")
		}
		if len(f.journal.Entries) != 0 {
			t.Error("commands ran despite empty virtualenv_root")
		}
	})
}

func TestPip_InstallVersusUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	pip := f.d.Pip()
	ref := "git+ssh://git@example.com/acme.git@master#egg=acme"

	if err := pip.InstallRepo(ctx, ref); err != nil {
		t.Fatalf("first InstallRepo() error = %v", err)
	}
	if err := pip.InstallRepo(ctx, ref); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("second InstallRepo() error = %v, want ErrAlreadyInstalled", err)
	}
	for i := 0; i < 2; i++ {
		if err := pip.UpdateRepo(ctx, ref); err != nil {
			t.Fatalf("UpdateRepo() #%d error = %v", i+1, err)
		}
	}

	want := []string{
		"pip install --download-cache=~/.pip/cache -I -e " + ref,
		"pip install --download-cache=~/.pip/cache -U -e " + ref,
		"pip install --download-cache=~/.pip/cache -U -e " + ref,
	}
	got := f.scripts()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("scripts =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestPip_FailedInstallCanRetry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.remote.FailOn("-I", 1, "network unreachable")

	if err := f.d.Pip().InstallRepo(context.Background(), "pkg"); errors.Is(err, ErrAlreadyInstalled) || err == nil {
		t.Fatalf("InstallRepo() error = %v, want command failure", err)
	}
	if f.d.Pip().installed["pkg"] {
		t.Error("failed install was recorded as installed")
	}
}

func TestPip_ArgsAndScope(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		settings     map[string]any
		wantScript   string
		wantPrefixes int
	}{
		{
			name:         "defaults",
			wantScript:   "pip install --download-cache=~/.pip/cache -U -r reqs.txt",
			wantPrefixes: 1,
		},
		{
			name:         "pip args and no cache",
			settings:     map[string]any{env.KeyPipArgs: "--quiet", env.KeyPipDownloadCache: ""},
			wantScript:   "pip install -U --quiet -r reqs.txt",
			wantPrefixes: 1,
		},
		{
			name:         "no virtualenv",
			settings:     map[string]any{env.KeyVirtualenvRoot: ""},
			wantScript:   "pip install --download-cache=~/.pip/cache -U -r reqs.txt",
			wantPrefixes: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.settings)
			if err := f.d.Pip().UpdateRequirements(context.Background(), "reqs.txt"); err != nil {
				t.Fatalf("UpdateRequirements() error = %v", err)
			}
			cmd := f.commands()[0]
			if cmd.Script != tt.wantScript {
				t.Errorf("script = %q, want %q", cmd.Script, tt.wantScript)
			}
			if cmd.Dir != "/www/acme" {
				t.Errorf("dir = %q, want /www/acme", cmd.Dir)
			}
			if len(cmd.Prefixes) != tt.wantPrefixes {
				t.Errorf("prefixes = %v, want %d", cmd.Prefixes, tt.wantPrefixes)
			}
			if tt.wantPrefixes == 1 && cmd.Prefixes[0] != "source /www/acme/venv/bin/activate" {
				t.Errorf("prefix = %q", cmd.Prefixes[0])
			}
		})
	}
}

func TestPullRepo_Twice(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.d.PullRepo(ctx); err != nil {
		t.Fatalf("PullRepo() error = %v", err)
	}
	if err := f.d.PullRepo(ctx); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("second PullRepo() error = %v, want ErrAlreadyInstalled", err)
	}
}

func TestUpdatePythonPackages_Directory(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	if err := f.d.UpdatePythonPackages(context.Background()); err != nil {
		t.Fatalf("UpdatePythonPackages() error = %v", err)
	}

	ups := f.uploads()
	if len(ups) != 1 || ups[0].Upload != "/tmp/acme/requirements/production.txt" {
		t.Fatalf("uploads = %+v", ups)
	}
	scripts := f.scripts()
	egg := "'-e git+ssh://git@example.com/acme.git@master#egg=acme'"
	if i := indexOf(scripts, "grep -qxF -- "+egg+" '/tmp/acme/requirements/production.txt'"); i < 0 {
		t.Errorf("egg line not appended:\n%s", strings.Join(scripts, "\n"))
	}
	if scripts[len(scripts)-1] != "rm -rf '/tmp/acme'" {
		t.Errorf("last script = %q, want cleanup", scripts[len(scripts)-1])
	}
}

func TestUpdatePythonPackages_FileMode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]any{env.KeyRequirementsMode: "file"})

	if err := f.d.UpdatePythonPackages(context.Background()); err != nil {
		t.Fatalf("UpdatePythonPackages() error = %v", err)
	}

	ups := f.uploads()
	if len(ups) != 1 || ups[0].Upload != "/tmp/acme/requirements-acme.txt" {
		t.Fatalf("uploads = %+v", ups)
	}
	want := "Django==1.4\n-e git+ssh://git@example.com/acme.git@master#egg=acme\n"
	if string(ups[0].Content) != want {
		t.Errorf("merged requirements = %q, want %q", ups[0].Content, want)
	}
	if indexOf(f.scripts(), "-U -r /tmp/acme/requirements-acme.txt") < 0 {
		t.Errorf("pip did not install merged file:\n%s", strings.Join(f.scripts(), "\n"))
	}
}

func TestUpdatePythonPackages_MissingProduction(t *testing.T) {
	t.Parallel()

	t.Run("strict", func(t *testing.T) {
		f := newFixture(t, nil)
		if err := os.Remove(filepath.Join(f.workDir, "requirements", "production.txt")); err != nil {
			t.Fatal(err)
		}
		if err := f.d.UpdatePythonPackages(context.Background()); err == nil {
			t.Fatal("expected error for missing production.txt")
		}
		if len(f.journal.Entries) != 0 {
			t.Error("commands ran despite missing requirements")
		}
	})

	t.Run("optional", func(t *testing.T) {
		f := newFixture(t, map[string]any{env.KeyRequirementsOptional: "true", env.KeyRequirementsMode: "file"})
		if err := os.RemoveAll(filepath.Join(f.workDir, "requirements")); err != nil {
			t.Fatal(err)
		}
		if err := f.d.UpdatePythonPackages(context.Background()); err != nil {
			t.Fatalf("UpdatePythonPackages() error = %v", err)
		}
		ups := f.uploads()
		if len(ups) != 1 || !strings.HasPrefix(string(ups[0].Content), "-e git+ssh://") {
			t.Errorf("uploads = %+v, want egg-only requirements", ups)
		}
	})
}

func TestUpdatePythonPackages_InvalidMode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]any{env.KeyRequirementsMode: "zip"})
	var invalid *InvalidOptionError
	if err := f.d.UpdatePythonPackages(context.Background()); !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want *InvalidOptionError", err)
	}
	if invalid.Key != env.KeyRequirementsMode {
		t.Errorf("Key = %q", invalid.Key)
	}
}

func TestRestart_Dispatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		webserver   string
		control     string
		wantScript  string
		wantNoShell bool
	}{
		{webserver: "gunicorn", control: "supervisor", wantScript: "/usr/bin/supervisorctl restart acme", wantNoShell: true},
		{webserver: "apache", control: "sysvinit", wantScript: "/etc/init.d/apache2 restart"},
		{webserver: "gunicorn", control: "sysvinit"},
		{webserver: "apache", control: "supervisor"},
		{webserver: "uwsgi", control: "systemd"},
	}
	for _, tt := range tests {
		t.Run(tt.webserver+"/"+tt.control, func(t *testing.T) {
			f := newFixture(t, map[string]any{
				env.KeyWebserver:      tt.webserver,
				env.KeyProcessControl: tt.control,
			})
			err := f.d.Restart(context.Background())

			if tt.wantScript == "" {
				var unsupported *UnsupportedConfigurationError
				if !errors.As(err, &unsupported) {
					t.Fatalf("Restart() error = %v, want *UnsupportedConfigurationError", err)
				}
				if unsupported.Webserver != tt.webserver || unsupported.ProcessControl != tt.control {
					t.Errorf("error fields = %+v", unsupported)
				}
				if len(f.journal.Entries) != 0 {
					t.Error("commands ran for unsupported combination")
				}
				return
			}

			if err != nil {
				t.Fatalf("Restart() error = %v", err)
			}
			cmds := f.commands()
			if len(cmds) != 1 {
				t.Fatalf("commands = %d, want 1", len(cmds))
			}
			if cmds[0].Script != tt.wantScript || !cmds[0].Sudo || cmds[0].NoShell != tt.wantNoShell {
				t.Errorf("command = %+v", cmds[0])
			}
		})
	}
}

func TestUpdateCode(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if err := f.d.UpdateCode(context.Background()); err != nil {
		t.Fatalf("UpdateCode() error = %v", err)
	}
	want := []string{
		"pip install --download-cache=~/.pip/cache -U -e git+ssh://git@example.com/acme.git@master#egg=acme",
		"/usr/bin/supervisorctl restart acme",
	}
	if got := f.scripts(); strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("scripts = %q, want %q", got, want)
	}
}

func TestUpdateCode_UnsupportedRestart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]any{env.KeyProcessControl: "runit"})
	var unsupported *UnsupportedConfigurationError
	if err := f.d.UpdateCode(context.Background()); !errors.As(err, &unsupported) {
		t.Errorf("UpdateCode() error = %v, want *UnsupportedConfigurationError", err)
	}
}

func TestUpdateCodeCheckout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, map[string]any{env.KeyBranch: "stable"})
	if err := f.d.UpdateCodeCheckout(context.Background()); err != nil {
		t.Fatalf("UpdateCodeCheckout() error = %v", err)
	}
	cmds := f.commands()
	if len(cmds) != 2 || cmds[0].Script != "git pull" || cmds[0].Dir != "/www/acme" {
		t.Errorf("commands = %+v", cmds)
	}
}

func TestManage(t *testing.T) {
	t.Parallel()

	t.Run("args verbatim", func(t *testing.T) {
		f := newFixture(t, map[string]any{env.KeyDjangoSettingsModule: "acme.settings"})
		if err := f.d.Manage(context.Background(), "migrate", "app", "--fake", "key=value"); err != nil {
			t.Fatalf("Manage() error = %v", err)
		}
		cmd := f.commands()[0]
		if cmd.Script != "manage migrate app --fake key=value --settings=acme.settings" {
			t.Errorf("script = %q", cmd.Script)
		}
		if len(cmd.Prefixes) != 1 {
			t.Errorf("manage did not run in virtualenv: %+v", cmd)
		}
	})

	t.Run("missing settings module", func(t *testing.T) {
		f := newFixture(t, nil)
		err := f.d.Manage(context.Background(), "shell")
		if !env.IsMissingDefault(err) {
			t.Errorf("Manage() error = %v, want missing default", err)
		}
	})

	t.Run("collectstatic", func(t *testing.T) {
		f := newFixture(t, map[string]any{env.KeyDjangoSettingsModule: "acme.settings"})
		if err := f.d.CollectStatic(context.Background()); err != nil {
			t.Fatalf("CollectStatic() error = %v", err)
		}
		if got := f.scripts()[0]; got != "manage collectstatic --noinput --settings=acme.settings" {
			t.Errorf("script = %q", got)
		}
	})
}

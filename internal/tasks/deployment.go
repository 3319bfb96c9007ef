// Package tasks composes configuration, command templates and remote
// execution into named deployment tasks.
//
// Every task runs against one host through a Deployment. Tasks read settings
// from the deployment's env (resolving defaults on first use), build shell
// commands and hand them to the remote or local shell in order. Nothing is
// retried and nothing is rolled back: the first strict failure ends the task.
package tasks

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
	"github.com/grantcarthew/flax/internal/render"
	"github.com/grantcarthew/flax/internal/roles"
	"github.com/grantcarthew/flax/internal/temp"
)

// Config holds the collaborators of a Deployment.
type Config struct {
	// Env is the settings store for this host. It is mutated as defaults
	// resolve, so each host needs its own.
	Env *env.Env
	// Roles maps hosts to roles and packages. Nil means no roledefs.
	Roles *roles.Table
	// Remote runs commands on the target host.
	Remote remote.Shell
	// Local runs commands on the machine flax runs on.
	Local remote.Shell
	// Renderer renders configuration templates. Nil means built-ins only.
	Renderer *render.Renderer
	// Temp stages merged files before upload. Nil means WorkDir/.flax/temp.
	Temp *temp.Manager
	// WorkDir resolves relative local paths such as requirements_dir.
	WorkDir string
	// Out receives notices. Nil discards them.
	Out io.Writer
}

// Deployment runs tasks against one host.
type Deployment struct {
	Config
	pip *Pip
}

// New creates a deployment from cfg.
func New(cfg Config) *Deployment {
	if cfg.Env == nil {
		cfg.Env = env.NewWithDefaults()
	}
	if cfg.Roles == nil {
		cfg.Roles = roles.New(nil, nil)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = &render.Renderer{}
	}
	if cfg.Temp == nil {
		cfg.Temp = temp.NewWorkManager(cfg.WorkDir)
	}
	d := &Deployment{Config: cfg}
	d.pip = &Pip{d: d, installed: make(map[string]bool)}
	return d
}

// Pip returns the package installer bound to this deployment.
func (d *Deployment) Pip() *Pip {
	return d.pip
}

// hostNames returns the names roledefs may list this host under: the bare
// host and the host string it was targeted with.
func (d *Deployment) hostNames() []string {
	var names []string
	for _, key := range []string{env.KeyHost, env.KeyHostString} {
		if v, _ := d.Env.Lookup(key, ""); v != "" {
			names = append(names, v)
		}
	}
	if len(names) == 0 {
		names = append(names, d.Remote.Name())
	}
	return names
}

// virtualenv returns the remote shell scoped to the project root with the
// virtualenv activated. An empty virtualenv_root skips activation.
func (d *Deployment) virtualenv() (remote.Shell, error) {
	root, err := d.Env.String(env.KeyProjectRoot)
	if err != nil {
		return remote.Shell{}, err
	}
	venv, err := d.Env.String(env.KeyVirtualenvRoot)
	if err != nil {
		return remote.Shell{}, err
	}
	sh := d.Remote.Cd(root)
	if venv != "" {
		sh = sh.Prefix("source " + venv + "/bin/activate")
	}
	return sh, nil
}

// localPath resolves p against WorkDir.
func (d *Deployment) localPath(p string) string {
	if filepath.IsAbs(p) || d.WorkDir == "" {
		return p
	}
	return filepath.Join(d.WorkDir, p)
}

// sudo formats tmpl with settings and runs it as root.
func (d *Deployment) sudo(ctx context.Context, tmpl string) error {
	script, err := d.Env.Format(tmpl)
	if err != nil {
		return err
	}
	_, err = d.Remote.Sudo(ctx, script)
	return err
}

func (d *Deployment) notef(format string, args ...any) {
	if d.Out == nil {
		return
	}
	_, _ = fmt.Fprintf(d.Out, "[%s] %s\n", d.Remote.Name(), fmt.Sprintf(format, args...))
}

// join joins the non-empty parts with single spaces.
func join(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

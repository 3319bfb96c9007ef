package tasks

import (
	"context"

	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
)

// Supported restart combinations.
const (
	WebserverGunicorn = "gunicorn"
	WebserverApache   = "apache"

	ProcessControlSupervisor = "supervisor"
	ProcessControlSysvinit   = "sysvinit"
)

// Restart restarts the application processes. Only gunicorn under supervisor
// and apache under sysvinit are handled; any other pair fails with
// *UnsupportedConfigurationError.
func (d *Deployment) Restart(ctx context.Context) error {
	webserver, err := d.Env.String(env.KeyWebserver)
	if err != nil {
		return err
	}
	control, err := d.Env.String(env.KeyProcessControl)
	if err != nil {
		return err
	}

	if err := CheckRestart(webserver, control); err != nil {
		return err
	}

	if webserver == WebserverApache {
		_, err := d.Remote.Sudo(ctx, "/etc/init.d/apache2 restart")
		return err
	}
	script, err := d.Env.Format("/usr/bin/supervisorctl restart {project_name}")
	if err != nil {
		return err
	}
	// sudoers may allow only /usr/bin/supervisorctl: full path, no shell.
	_, err = d.Remote.Exec(ctx, remote.Command{Script: script, Sudo: true, NoShell: true})
	return err
}

// CheckRestart returns an *UnsupportedConfigurationError unless restart
// knows how to handle the webserver and process control pair.
func CheckRestart(webserver, control string) error {
	switch {
	case webserver == WebserverGunicorn && control == ProcessControlSupervisor,
		webserver == WebserverApache && control == ProcessControlSysvinit:
		return nil
	}
	return &UnsupportedConfigurationError{Webserver: webserver, ProcessControl: control}
}

// UpdateCode upgrades the project egg only, then restarts.
func (d *Deployment) UpdateCode(ctx context.Context) error {
	egg, err := d.Env.String(env.KeyProjectEgg)
	if err != nil {
		return err
	}
	if err := d.pip.UpdateRepo(ctx, egg); err != nil {
		return err
	}
	return d.Restart(ctx)
}

// UpdateCodeCheckout pulls a direct checkout in the project root, then
// restarts.
func (d *Deployment) UpdateCodeCheckout(ctx context.Context) error {
	sh, err := d.virtualenv()
	if err != nil {
		return err
	}
	if _, err := sh.Run(ctx, "git pull"); err != nil {
		return err
	}
	return d.Restart(ctx)
}

// Update upgrades the Python requirements, then restarts.
func (d *Deployment) Update(ctx context.Context) error {
	if err := d.UpdatePythonPackages(ctx); err != nil {
		return err
	}
	return d.Restart(ctx)
}

// PullRepo installs the project repository afresh.
func (d *Deployment) PullRepo(ctx context.Context) error {
	repo, err := d.Env.String(env.KeyRepository)
	if err != nil {
		return err
	}
	return d.pip.InstallRepo(ctx, repo)
}

// Manage runs the project management command with args passed verbatim.
func (d *Deployment) Manage(ctx context.Context, args ...string) error {
	settings, err := d.Env.String(env.KeyDjangoSettingsModule)
	if err != nil {
		return err
	}
	sh, err := d.virtualenv()
	if err != nil {
		return err
	}
	script := join("manage", join(args...), "--settings="+settings)
	_, err = sh.Run(ctx, script)
	return err
}

// CollectStatic collects static files without prompting.
func (d *Deployment) CollectStatic(ctx context.Context) error {
	return d.Manage(ctx, "collectstatic", "--noinput")
}

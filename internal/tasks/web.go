package tasks

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/render"
)

// Supervisor reload modes.
const (
	SupervisorReload  = "reload"
	SupervisorRestart = "restart"
)

// ConfigureNginx installs and enables the site configuration and one
// configuration per media site, then restarts nginx.
func (d *Deployment) ConfigureNginx(ctx context.Context) error {
	name, err := d.Env.String(env.KeyProjectName)
	if err != nil {
		return err
	}
	available, err := d.Env.String(env.KeyNginxAvailable)
	if err != nil {
		return err
	}
	enabled, err := d.Env.String(env.KeyNginxEnabled)
	if err != nil {
		return err
	}
	sites, err := d.Env.Maps(env.KeyMediaSites)
	if err != nil {
		return err
	}

	if err := d.installSite(ctx, render.NginxSite, d.Env.Snapshot(), available, enabled, name); err != nil {
		return err
	}

	for i, site := range sites {
		siteName, _ := site["name"].(string)
		if siteName == "" {
			return fmt.Errorf("%s[%d]: name is required", env.KeyMediaSites, i)
		}
		data := make(map[string]any, len(site)+2)
		for k, v := range site {
			data[k] = v
		}
		data[env.KeyProjectName] = name
		if _, ok := data[env.KeyServerName]; !ok {
			data[env.KeyServerName] = siteName
		}
		if err := d.installSite(ctx, render.NginxMedia, data, available, enabled, siteName); err != nil {
			return err
		}
	}

	_, err = d.Remote.Sudo(ctx, "service nginx restart")
	return err
}

func (d *Deployment) installSite(ctx context.Context, tmpl string, data map[string]any, available, enabled, name string) error {
	content, err := d.Renderer.Render(tmpl, data)
	if err != nil {
		return err
	}
	dst := path.Join(available, name)
	if err := d.Remote.Upload(ctx, strings.NewReader(content), dst, true); err != nil {
		return err
	}
	_, err = d.Remote.Sudo(ctx, "ln -sf "+dst+" "+enabled+"/")
	return err
}

// ConfigureSupervisor installs the application program configuration,
// creates the log directory and makes supervisor pick up the change.
func (d *Deployment) ConfigureSupervisor(ctx context.Context) error {
	mode, err := d.Env.String(env.KeySupervisorReload)
	if err != nil {
		return err
	}
	if mode != SupervisorReload && mode != SupervisorRestart {
		return &InvalidOptionError{
			Key:     env.KeySupervisorReload,
			Value:   mode,
			Allowed: []string{SupervisorReload, SupervisorRestart},
		}
	}
	dst, err := d.Env.Format("{supervisor_conf_dir}/{project_name}.conf")
	if err != nil {
		return err
	}

	content, err := d.Renderer.Render(render.SupervisorAppServer, d.Env.Snapshot())
	if err != nil {
		return err
	}
	if err := d.Remote.Upload(ctx, strings.NewReader(content), dst, true); err != nil {
		return err
	}
	if err := d.sudo(ctx, "mkdir -p {log_root}"); err != nil {
		return err
	}
	if err := d.sudo(ctx, "chown {log_owner} {log_root}"); err != nil {
		return err
	}

	if mode == SupervisorRestart {
		_, err = d.Remote.Sudo(ctx, "service supervisor restart")
		return err
	}
	_, err = d.Remote.WarnOnly().Sudo(ctx, "supervisorctl reload")
	return err
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
)

// Requirements upload modes.
const (
	RequirementsDirectory = "directory"
	RequirementsFile      = "file"
)

// ProductionRequirements is the file inside requirements_dir that receives
// the project egg line.
const ProductionRequirements = "production.txt"

// Bootstrap provisions a fresh host: OS packages, the project, PostgreSQL and
// supervisor, in that order.
func (d *Deployment) Bootstrap(ctx context.Context) error {
	steps := []func(context.Context) error{
		d.InstallDebs,
		d.InstallProject,
		d.ConfigurePostgreSQL,
		d.ConfigureSupervisor,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// InstallDebs installs the OS packages required by every role of the host.
// A host with no roles installs nothing.
func (d *Deployment) InstallDebs(ctx context.Context) error {
	names := d.hostNames()
	pkgs := d.Roles.PackagesFor(names...)
	if len(pkgs) == 0 {
		d.notef("no roles for %s, no packages to install", names[0])
		return nil
	}
	_, err := d.Remote.Sudo(ctx, "apt-get install -y "+strings.Join(pkgs, " "))
	return err
}

// InstallDjango would install Django from OS packages. Django comes from the
// project requirements instead, so this always fails.
func (d *Deployment) InstallDjango(context.Context) error {
	return fmt.Errorf("install_django: %w", ErrNotSupported)
}

// CreateProjectRoot creates project_root owned by the connecting user.
func (d *Deployment) CreateProjectRoot(ctx context.Context) error {
	if err := d.sudo(ctx, "mkdir -p {project_root}"); err != nil {
		return err
	}
	return d.sudo(ctx, "chown {user}:{user} {project_root}")
}

// CreateVirtualenv creates the virtualenv at virtualenv_root.
func (d *Deployment) CreateVirtualenv(ctx context.Context) error {
	venv, err := d.Env.String(env.KeyVirtualenvRoot)
	if err != nil {
		return err
	}
	if venv == "" {
		return fmt.Errorf("create_virtualenv: %s is empty", env.KeyVirtualenvRoot)
	}
	root, err := d.Env.String(env.KeyProjectRoot)
	if err != nil {
		return err
	}
	_, err = d.Remote.Cd(root).Run(ctx, "virtualenv --distribute "+venv)
	return err
}

// InstallProject creates the project root and virtualenv, then installs the
// Python requirements.
func (d *Deployment) InstallProject(ctx context.Context) error {
	if err := d.CreateProjectRoot(ctx); err != nil {
		return err
	}
	if err := d.CreateVirtualenv(ctx); err != nil {
		return err
	}
	return d.UpdatePythonPackages(ctx)
}

// UpdatePythonPackages uploads the local requirements with the project egg
// appended and upgrades everything they list.
func (d *Deployment) UpdatePythonPackages(ctx context.Context) error {
	name, err := d.Env.String(env.KeyProjectName)
	if err != nil {
		return err
	}
	egg, err := d.Env.String(env.KeyProjectEgg)
	if err != nil {
		return err
	}
	mode, err := d.Env.String(env.KeyRequirementsMode)
	if err != nil {
		return err
	}
	if mode != RequirementsDirectory && mode != RequirementsFile {
		return &InvalidOptionError{
			Key:     env.KeyRequirementsMode,
			Value:   mode,
			Allowed: []string{RequirementsDirectory, RequirementsFile},
		}
	}
	reqDirSetting, err := d.Env.String(env.KeyRequirementsDir)
	if err != nil {
		return err
	}
	optional, err := d.Env.Bool(env.KeyRequirementsOptional)
	if err != nil {
		return err
	}

	reqDir := d.localPath(reqDirSetting)
	production := filepath.Join(reqDir, ProductionRequirements)
	haveProduction := true
	if _, err := os.Stat(production); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", production, err)
		}
		if !optional {
			return fmt.Errorf("requirements file %s not found (set %s to continue without it)",
				production, env.KeyRequirementsOptional)
		}
		haveProduction = false
	}

	remoteDir := path.Join("/tmp", name)
	eggLine := "-e " + egg

	var remoteReqs string
	switch mode {
	case RequirementsDirectory:
		remoteReqDir := path.Join(remoteDir, filepath.Base(reqDir))
		if _, err := d.Remote.Run(ctx, "mkdir -p "+remote.Quote(remoteReqDir)); err != nil {
			return err
		}
		if _, err := os.Stat(reqDir); err == nil {
			if err := d.Remote.Put(ctx, reqDir, remoteDir); err != nil {
				return err
			}
		}
		remoteReqs = path.Join(remoteReqDir, ProductionRequirements)
		if err := d.Remote.Append(ctx, remoteReqs, eggLine, false); err != nil {
			return err
		}

	case RequirementsFile:
		var merged string
		if haveProduction {
			data, err := os.ReadFile(production)
			if err != nil {
				return fmt.Errorf("reading %s: %w", production, err)
			}
			merged = string(data)
			if merged != "" && !strings.HasSuffix(merged, "\n") {
				merged += "\n"
			}
		}
		merged += eggLine + "\n"
		local, err := d.Temp.WriteRequirements(name, merged)
		if err != nil {
			return err
		}
		if _, err := d.Remote.Run(ctx, "mkdir -p "+remote.Quote(remoteDir)); err != nil {
			return err
		}
		if err := d.Remote.Put(ctx, local, remoteDir); err != nil {
			return err
		}
		remoteReqs = path.Join(remoteDir, filepath.Base(local))
	}

	if err := d.pip.UpdateRequirements(ctx, remoteReqs); err != nil {
		return err
	}
	_, err = d.Remote.Run(ctx, "rm -rf "+remote.Quote(remoteDir))
	return err
}

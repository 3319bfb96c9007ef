package tasks

import (
	"context"
	"fmt"

	"github.com/grantcarthew/flax/internal/env"
)

// Pip installs Python packages into the project virtualenv.
//
// The install variant forces a fresh install (-I) and refuses to install the
// same reference twice in one run. The update variants upgrade in place (-U)
// and can be repeated.
type Pip struct {
	d         *Deployment
	installed map[string]bool
}

// Run runs pip with args inside the virtualenv.
func (p *Pip) Run(ctx context.Context, args string) error {
	sh, err := p.d.virtualenv()
	if err != nil {
		return err
	}
	_, err = sh.Run(ctx, join("pip", args))
	return err
}

// Install runs pip install with the download cache and args.
func (p *Pip) Install(ctx context.Context, args ...string) error {
	cache, err := p.d.Env.String(env.KeyPipDownloadCache)
	if err != nil {
		return err
	}
	cacheArg := ""
	if cache != "" {
		cacheArg = "--download-cache=" + cache
	}
	return p.Run(ctx, join(append([]string{"install", cacheArg}, args...)...))
}

// InstallRepo installs ref in editable mode, ignoring anything already
// installed.
func (p *Pip) InstallRepo(ctx context.Context, ref string) error {
	if p.installed[ref] {
		return fmt.Errorf("%s: %w", ref, ErrAlreadyInstalled)
	}
	pipArgs, err := p.d.Env.String(env.KeyPipArgs)
	if err != nil {
		return err
	}
	if err := p.Install(ctx, "-I", pipArgs, "-e", ref); err != nil {
		return err
	}
	p.installed[ref] = true
	return nil
}

// UpdateRepo upgrades ref in editable mode.
func (p *Pip) UpdateRepo(ctx context.Context, ref string) error {
	pipArgs, err := p.d.Env.String(env.KeyPipArgs)
	if err != nil {
		return err
	}
	return p.Install(ctx, "-U", pipArgs, "-e", ref)
}

// UpdateRequirements upgrades everything listed in the remote requirements
// file at path.
func (p *Pip) UpdateRequirements(ctx context.Context, path string) error {
	pipArgs, err := p.d.Env.String(env.KeyPipArgs)
	if err != nil {
		return err
	}
	return p.Install(ctx, "-U", pipArgs, "-r", path)
}

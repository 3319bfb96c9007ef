package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grantcarthew/flax/internal/config"
	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
	"github.com/grantcarthew/flax/internal/render"
	"github.com/grantcarthew/flax/internal/roles"
)

// project is the loaded configuration of one working directory.
type project struct {
	workDir string
	paths   config.Paths
	loaded  config.Loaded
	// base carries CUE settings, environment overrides and --set values.
	// Each host works on a clone.
	base     *env.Env
	roles    *roles.Table
	renderer *render.Renderer
}

// loadProject reads configuration in precedence order: CUE (global then
// local), then .env and FLAX_* variables, then --set values.
func loadProject(flags *Flags, scope config.Scope, sets []string, environ []string) (*project, error) {
	dir, err := workDir(flags)
	if err != nil {
		return nil, err
	}
	paths, err := config.ResolvePaths(dir)
	if err != nil {
		return nil, err
	}
	debugf(flags, "config", "global %s (exists %t)", paths.Global, paths.GlobalExists)
	debugf(flags, "config", "local %s (exists %t)", paths.Local, paths.LocalExists)

	if err := config.ValidateConfig(paths).Err(); err != nil {
		return nil, err
	}
	loaded, err := config.Load(paths, scope)
	if err != nil {
		return nil, err
	}
	for _, src := range loaded.Sources {
		debugf(flags, "config", "loaded %s", src)
	}

	e := env.NewWithDefaults()
	loaded.Apply(e)

	fromEnv, err := config.EnvOverrides(paths.EnvFile(), environ)
	if err != nil {
		return nil, err
	}
	config.ApplyOverrides(e, fromEnv)
	for k := range fromEnv {
		debugf(flags, "config", "environment sets %s", k)
	}

	fromFlags, err := config.ParseSet(sets)
	if err != nil {
		return nil, err
	}
	config.ApplyOverrides(e, fromFlags)

	tmplDir, err := e.Lookup(env.KeyTemplateDir, paths.TemplateDir())
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(tmplDir)
	if err != nil {
		return nil, err
	}
	if tmplDir != "" {
		debugf(flags, "templates", "overrides from %s", tmplDir)
	}

	return &project{
		workDir:  dir,
		paths:    paths,
		loaded:   loaded,
		base:     e,
		roles:    loaded.Roles(),
		renderer: renderer,
	}, nil
}

// targets selects hosts: explicit hosts first, then the hosts of the named
// roles, falling back to the configured host list. Duplicates collapse.
func (p *project) targets(hosts, roleNames []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(h string) {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			return
		}
		seen[h] = true
		out = append(out, h)
	}

	for _, h := range hosts {
		add(h)
	}
	if len(roleNames) > 0 {
		roleHosts, unknown := p.roles.HostsFor(roleNames...)
		if len(unknown) > 0 {
			return nil, fmt.Errorf("unknown role(s): %s (defined: %s)",
				strings.Join(unknown, ", "), strings.Join(p.roles.Roles(), ", "))
		}
		for _, h := range roleHosts {
			add(h)
		}
	}
	if len(out) == 0 {
		for _, h := range p.loaded.Hosts {
			add(h)
		}
	}
	return out, nil
}

// hostEnv returns a copy of the base store bound to target.
func (p *project) hostEnv(target string) (*env.Env, remote.HostString, error) {
	hs, err := remote.ParseHostString(target)
	if err != nil {
		return nil, hs, err
	}
	e := p.base.Clone()
	e.Set(env.KeyHostString, target)
	e.Set(env.KeyHost, hs.Host)
	if hs.User != "" {
		e.Set(env.KeyUser, hs.User)
	} else if u, _ := e.Lookup(env.KeyUser, ""); u != "" {
		hs.User = u
	}
	if hs.Port != 0 {
		e.Set(env.KeyPort, strconv.Itoa(hs.Port))
	} else if port, _ := e.Lookup(env.KeyPort, ""); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return nil, hs, fmt.Errorf("invalid port setting %q", port)
		}
		hs.Port = n
	}
	return e, hs, nil
}

// environ is os.Environ, replaceable in tests.
var environ = os.Environ

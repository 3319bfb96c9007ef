package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/flax/internal/config"
	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/render"
	"github.com/grantcarthew/flax/internal/tui"
)

// showOptions holds the flags of the show command.
type showOptions struct {
	host  string
	scope string
	sets  []string
}

// addShowCommand adds the show command to the parent command.
func addShowCommand(parent *cobra.Command) {
	opts := &showOptions{}

	cmd := &cobra.Command{
		Use:     "show [KEY...]",
		GroupID: "commands",
		Short:   "Show resolved settings and roles",
		Long: `Show settings after configuration, environment and --set values are
combined and defaults are resolved.

With KEY arguments only those settings are printed, one value per line.
Settings derived from the host, such as server_name, resolve only when
--host names one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Resolve settings for this host ([user@]host[:port])")
	cmd.Flags().StringVar(&opts.scope, "scope", "merged", "Configuration to read: global, local or merged")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Override a setting (key=value, repeatable)")

	parent.AddCommand(cmd)
}

// runShow executes the show command.
func runShow(cmd *cobra.Command, args []string, opts *showOptions) error {
	flags := getFlags(cmd)
	w := cmd.OutOrStdout()

	proj, err := loadProject(flags, config.ParseScope(opts.scope), opts.sets, environ())
	if err != nil {
		return err
	}

	e := proj.base.Clone()
	if opts.host != "" {
		e, _, err = proj.hostEnv(opts.host)
		if err != nil {
			return err
		}
	}

	if len(args) > 0 {
		return showKeys(w, e, args)
	}

	if !flags.Quiet {
		PrintHeader(w, "Configuration")
		PrintSeparator(w)
		if !proj.paths.AnyExists() || len(proj.loaded.Sources) == 0 {
			_, _ = fmt.Fprintln(w, "  (no CUE configuration found)")
		}
		for _, src := range proj.loaded.Sources {
			_, _ = fmt.Fprintf(w, "  %s\n", src)
		}
	}

	snapshot := e.Snapshot()
	keys := make([]string, 0, len(snapshot))
	values := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		keys = append(keys, k)
		values[k] = formatValue(k, v)
	}
	sort.Strings(keys)

	if !flags.Quiet {
		PrintHeader(w, "Settings")
		PrintSeparator(w)
	}
	PrintKeyValues(w, keys, values)

	if !flags.Quiet {
		var unresolved []string
		for _, k := range e.DefaultKeys() {
			if _, ok := snapshot[k]; !ok && k != env.KeyDBPassword {
				unresolved = append(unresolved, k)
			}
		}
		if len(unresolved) > 0 {
			_, _ = fmt.Fprintln(w)
			PrintWarning(w, "unresolved: %s", strings.Join(unresolved, ", "))
		}
		showRoles(w, proj)
		showTemplates(w, proj)
	}
	return nil
}

// showKeys prints the value of each key, failing on the first that cannot
// resolve.
func showKeys(w io.Writer, e *env.Env, keys []string) error {
	for _, k := range keys {
		v, err := e.Get(k)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		_, _ = fmt.Fprintln(w, formatValue(k, v))
	}
	return nil
}

// showRoles prints each role with its hosts and packages.
func showRoles(w io.Writer, proj *project) {
	roleNames := proj.roles.Roles()
	if len(roleNames) == 0 {
		return
	}
	PrintHeader(w, "Roles")
	PrintSeparator(w)
	for _, role := range roleNames {
		hosts, _ := proj.roles.HostsFor(role)
		_, _ = colorHost.Fprintf(w, "  %s\n", role)
		if len(hosts) == 0 {
			_, _ = fmt.Fprintln(w, "    hosts:    -")
		} else {
			_, _ = fmt.Fprintf(w, "    hosts:    %s\n", strings.Join(hosts, ", "))
		}
		for _, h := range hosts {
			_, _ = fmt.Fprintf(w, "    %s: %s\n", h, strings.Join(proj.roles.PackagesFor(h), " "))
		}
	}
}

// showTemplates prints each configuration template and where it is read
// from.
func showTemplates(w io.Writer, proj *project) {
	PrintHeader(w, "Templates")
	PrintSeparator(w)
	for _, name := range render.Builtins() {
		_, origin, err := proj.renderer.Source(name)
		if err != nil {
			PrintWarning(w, "%s: %v", name, err)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s %s\n", name, tui.Annotate("%s", shortenHome(origin)))
	}
}

// shortenHome replaces the home directory prefix of path with ~.
func shortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || !strings.HasPrefix(path, home+string(filepath.Separator)) {
		return path
	}
	return "~" + strings.TrimPrefix(path, home)
}

// formatValue renders a setting for display. Passwords are masked.
func formatValue(key string, v any) string {
	if secretKeys[key] {
		return dryRunPassword
	}
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ", ")
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

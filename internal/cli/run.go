package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/grantcarthew/flax/internal/config"
	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
	"github.com/grantcarthew/flax/internal/tasks"
	"github.com/grantcarthew/flax/internal/temp"
	"github.com/grantcarthew/flax/internal/tui"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	hosts           []string
	roles           []string
	sets            []string
	identities      []string
	knownHosts      string
	dryRun          bool
	insecureHostKey bool
}

// dialSSH opens the remote executor for a host. Tests replace it.
var dialSSH = func(ctx context.Context, cfg remote.SSHConfig) (remote.Executor, error) {
	return remote.DialSSH(ctx, cfg)
}

// addRunCommand adds the run command to the parent command.
func addRunCommand(parent *cobra.Command) {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:     "run TASK[:ARG,...]...",
		GroupID: "commands",
		Short:   "Run deployment tasks on target hosts",
		Long: `Run one or more tasks, in order, on every target host.

Targets come from --hosts, then the hosts of --roles, then the hosts list
in configuration. Tasks take arguments after a colon, separated by commas:

  flax run -H web1.example.com bootstrap
  flax run -R appserver update restart
  flax run manage:createsuperuser,--noinput

With --dry-run no connection is made. The commands each task would run are
written to a script alongside the resolved settings.`,
		Args: cobra.MinimumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			var names []string
			for _, t := range tasks.All() {
				names = append(names, t.Name+"\t"+t.Description)
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(cmd, args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.hosts, "hosts", "H", nil, "Target hosts ([user@]host[:port], comma separated)")
	cmd.Flags().StringSliceVarP(&opts.roles, "roles", "R", nil, "Target the hosts of these roles")
	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Override a setting (key=value, repeatable)")
	cmd.Flags().StringArrayVarP(&opts.identities, "identity", "i", nil, "SSH private key file (repeatable)")
	cmd.Flags().StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Record commands instead of running them")
	cmd.Flags().BoolVar(&opts.insecureHostKey, "insecure-host-key", false, "Skip SSH host key verification")

	parent.AddCommand(cmd)
}

// runTasks executes the run command.
func runTasks(cmd *cobra.Command, args []string, opts *runOptions) error {
	flags := getFlags(cmd)
	stdout := cmd.OutOrStdout()

	invocations, taskList, err := tasks.Resolve(args)
	if err != nil {
		return err
	}

	proj, err := loadProject(flags, config.ScopeMerged, opts.sets, environ())
	if err != nil {
		return err
	}

	targets, err := proj.targets(opts.hosts, opts.roles)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no target hosts: pass --hosts or --roles, or set hosts in configuration")
	}
	debugf(flags, "run", "targets %s", strings.Join(targets, ", "))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var progress io.Writer
	if !flags.Quiet {
		progress = stdout
	}

	var journal *remote.Journal
	var settings strings.Builder
	if opts.dryRun {
		journal = &remote.Journal{}
	}

	for _, target := range targets {
		e, hs, err := proj.hostEnv(target)
		if err != nil {
			return err
		}
		registerPasswordPrompt(cmd, e, target, opts.dryRun)

		remoteExec, localExec, err := openExecutors(ctx, cmd, flags, opts, e, hs, target, journal)
		if err != nil {
			return err
		}

		d := tasks.New(tasks.Config{
			Env:      e,
			Roles:    proj.roles,
			Remote:   remote.NewShell(remoteExec, progress),
			Local:    remote.NewLocalShell(localExec, progress),
			Renderer: proj.renderer,
			Temp:     temp.NewWorkManager(proj.workDir),
			WorkDir:  proj.workDir,
			Out:      progress,
		})

		runErr := invokeAll(ctx, d, target, invocations, taskList, progress)
		_ = remoteExec.Close()
		_ = localExec.Close()
		if runErr != nil {
			return runErr
		}

		if opts.dryRun {
			settings.WriteString(formatSettings(target, e.Snapshot()))
		}
	}

	if opts.dryRun {
		return writeDryRun(stdout, flags, journal, settings.String())
	}

	// Staged requirements files are only needed until upload.
	if err := temp.NewWorkManager(proj.workDir).Clean(); err != nil {
		debugf(flags, "run", "cleaning staged files: %v", err)
	}

	if !flags.Quiet {
		_, _ = fmt.Fprintln(stdout)
		PrintSuccess(stdout, "Done.")
	}
	return nil
}

// invokeAll runs the tasks on one host in order, stopping at the first
// failure.
func invokeAll(ctx context.Context, d *tasks.Deployment, target string, invocations []tasks.Invocation, taskList []tasks.Task, out io.Writer) error {
	for i, t := range taskList {
		if out != nil {
			_, _ = colorHost.Fprintf(out, "[%s]", target)
			_, _ = fmt.Fprintf(out, " Executing task '%s'\n", invocations[i])
		}
		if err := t.Invoke(ctx, d, invocations[i].Args); err != nil {
			return fmt.Errorf("[%s] %s: %w", target, t.Name, err)
		}
	}
	return nil
}

// openExecutors returns the remote and local executors for one host. Dry
// runs record both into journal.
func openExecutors(ctx context.Context, cmd *cobra.Command, flags *Flags, opts *runOptions, e *env.Env, hs remote.HostString, target string, journal *remote.Journal) (remote.Executor, remote.Executor, error) {
	if opts.dryRun {
		return remote.NewRecorder(target, journal), remote.NewRecorder("localhost", journal), nil
	}

	var out, errOut io.Writer
	if flags.Verbose {
		out, errOut = cmd.OutOrStdout(), cmd.ErrOrStderr()
	}

	keys := opts.identities
	if len(keys) == 0 {
		// Keys that need a passphrase only work through the agent.
		for _, k := range remote.DefaultKeyFiles() {
			if remote.CheckKeyFile(k) == nil {
				keys = append(keys, k)
			}
		}
	}
	debugf(flags, "ssh", "dialling %s with %d key file(s)", hs.Address(), len(keys))

	password, err := e.Lookup(env.KeyPassword, "")
	if err != nil {
		return nil, nil, err
	}
	// sudo_password falls back to the login password.
	sudoPassword, err := e.Lookup(env.KeySudoPassword, password)
	if err != nil {
		return nil, nil, err
	}

	progress := tui.NewProgress(cmd.ErrOrStderr(), flags.Quiet)
	progress.Update("Connecting to %s...", target)
	rexec, err := dialSSH(ctx, remote.SSHConfig{
		Target:                hs,
		KeyFiles:              keys,
		Password:              password,
		SudoPassword:          sudoPassword,
		PromptSudoPassword:    terminalPassword(cmd, fmt.Sprintf("[%s] sudo password: ", target)),
		KnownHostsFile:        opts.knownHosts,
		InsecureIgnoreHostKey: opts.insecureHostKey,
		Stdout:                out,
		Stderr:                errOut,
	})
	progress.Done()
	if err != nil {
		return nil, nil, err
	}
	return rexec, remote.NewLocal(out, errOut), nil
}

// dryRunPassword stands in for db_password in recorded commands.
const dryRunPassword = "********"

// secretKeys are masked wherever settings are printed.
var secretKeys = map[string]bool{
	env.KeyDBPassword:   true,
	env.KeyPassword:     true,
	env.KeySudoPassword: true,
}

// registerPasswordPrompt makes db_password ask on the terminal the first time
// a task needs it, unless it is already configured.
func registerPasswordPrompt(cmd *cobra.Command, e *env.Env, target string, dryRun bool) {
	if e.IsSet(env.KeyDBPassword) {
		return
	}
	if dryRun {
		e.SetPromptDefault(env.KeyDBPassword, func(*env.Env) (any, error) {
			return dryRunPassword, nil
		})
		return
	}
	read := terminalPassword(cmd, fmt.Sprintf("[%s] Database password: ", target))
	if read == nil {
		return
	}
	e.SetPromptDefault(env.KeyDBPassword, func(*env.Env) (any, error) {
		return read()
	})
}

// terminalPassword returns a function that reads a password from the
// terminal after printing prompt, or nil when stdin is not a terminal.
func terminalPassword(cmd *cobra.Command, prompt string) remote.PasswordFunc {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(in) {
		return nil
	}
	out := cmd.ErrOrStderr()
	return func() (string, error) {
		_, _ = fmt.Fprint(out, prompt)
		pw, err := term.ReadPassword(int(in.Fd()))
		_, _ = fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pw), nil
	}
}

// formatSettings renders a host's resolved settings, one per line, with
// passwords masked.
func formatSettings(target string, snapshot map[string]any) string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", target)
	for _, k := range keys {
		v := snapshot[k]
		if secretKeys[k] {
			v = dryRunPassword
		}
		fmt.Fprintf(&sb, "%s = %v\n", k, v)
	}
	sb.WriteString("\n")
	return sb.String()
}

// writeDryRun stores the recorded script and settings and reports where.
func writeDryRun(w io.Writer, flags *Flags, journal *remote.Journal, settings string) error {
	tm := temp.NewDryRunManager()
	dir, err := tm.DryRunDir()
	if err != nil {
		return err
	}
	if err := tm.WriteDryRunFiles(dir, journal.Script(), settings); err != nil {
		return err
	}

	if flags.Quiet {
		_, _ = fmt.Fprintln(w, dir)
		return nil
	}
	PrintHeader(w, "Dry Run")
	PrintSeparator(w)
	_, _ = fmt.Fprintf(w, "%d command(s) recorded\n", len(journal.Entries))
	_, _ = fmt.Fprintf(w, "Files: %s/\n", dir)
	_, _ = fmt.Fprintln(w, "  commands.sh")
	_, _ = fmt.Fprintln(w, "  settings.txt")
	return nil
}

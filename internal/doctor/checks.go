package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/grantcarthew/flax/internal/config"
	internalcue "github.com/grantcarthew/flax/internal/cue"
	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
	"github.com/grantcarthew/flax/internal/roles"
	"github.com/grantcarthew/flax/internal/tasks"
	"github.com/grantcarthew/flax/internal/temp"
)

// LocalTools are the programs clone_db runs on the local machine.
var LocalTools = []string{"rsync", "ssh", "psql", "createdb", "createuser", "dropdb", "dropuser"}

// CheckIntro returns the intro section with repository info.
func CheckIntro() SectionResult {
	return SectionResult{
		Name:    "Repository",
		Plain:   true,
		Results: []CheckResult{
			{Status: StatusInfo, Label: RepoURL},
			{Status: StatusInfo, Label: IssuesURL},
		},
	}
}

// CheckVersion returns the version section with build info.
func CheckVersion(info BuildInfo) SectionResult {
	return SectionResult{
		Name:    "Version",
		Plain:   true,
		Results: []CheckResult{
			{Status: StatusInfo, Label: "flax " + info.Version},
			{Status: StatusInfo, Label: "Commit", Message: info.Commit},
			{Status: StatusInfo, Label: "Built", Message: info.BuildDate},
			{Status: StatusInfo, Label: "Go", Message: info.GoVersion},
			{Status: StatusInfo, Label: "Platform", Message: info.Platform},
		},
	}
}

// CheckConfiguration reports each configuration directory with its files
// and keys, every problem found per top-level key, and whether the layers
// merge.
func CheckConfiguration(paths config.Paths) SectionResult {
	section := SectionResult{Name: "Configuration"}

	result := config.ValidateConfig(paths)
	reports := make(map[config.Scope]config.DirReport, len(result.Dirs))
	for _, d := range result.Dirs {
		reports[d.Scope] = d
	}

	anyValid := false
	for _, layer := range []struct {
		scope config.Scope
		dir   string
	}{
		{config.ScopeGlobal, paths.Global},
		{config.ScopeLocal, paths.Local},
	} {
		report, ok := reports[layer.scope]
		label := fmt.Sprintf("%s (%s)", layer.scope, shortenPath(layer.dir))
		if !ok {
			section.Results = append(section.Results, CheckResult{Status: StatusInfo, Label: label, Message: "Not found"})
			continue
		}
		anyValid = anyValid || report.Valid()
		section.Results = append(section.Results, configDirResults(label, report)...)
	}

	if anyValid && !result.HasErrors() {
		if _, err := config.Load(paths, config.ScopeMerged); err != nil {
			section.Results = append(section.Results, CheckResult{
				Status:  StatusFail,
				Label:   "Merge",
				Message: err.Error(),
				Fix:     "Global and local values conflict; change one of them",
			})
		} else {
			section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: "Merge", Message: "global and local combine"})
		}
	}
	return section
}

func configDirResults(label string, report config.DirReport) []CheckResult {
	if len(report.Files) == 0 && len(report.Problems) == 0 {
		return []CheckResult{{Status: StatusInfo, Label: label, Message: "No CUE files"}}
	}

	if len(report.Problems) > 0 {
		var results []CheckResult
		for _, p := range report.Problems {
			r := CheckResult{Status: StatusFail, Label: label, Message: p.Error()}
			if report.Unreadable {
				r.Fix = "Fix CUE syntax errors in this directory"
				r.Details = splitLines(internalcue.IdentifyBrokenFiles(report.Files))
			} else {
				r.Fix = "Run 'flax help config' for the accepted keys"
				r.Details = splitLines(p.Context)
			}
			results = append(results, r)
		}
		return results
	}

	keys := "no keys"
	if len(report.Keys) > 0 {
		keys = strings.Join(report.Keys, ", ")
	}
	results := []CheckResult{{Status: StatusPass, Label: label, Message: keys}}
	for _, f := range report.Files {
		results = append(results, CheckResult{Status: StatusInfo, Label: "  " + filepath.Base(f)})
	}
	return results
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// CheckSettings resolves every key with a default rule and reports the ones
// that fail. Keys listed in required must resolve to a non-empty value.
func CheckSettings(e *env.Env, required []string) SectionResult {
	section := SectionResult{Name: "Settings"}

	for _, key := range required {
		val, err := e.String(key)
		switch {
		case env.IsMissingDefault(err):
			section.Results = append(section.Results, CheckResult{
				Status:  StatusFail,
				Label:   key,
				Message: "not set",
				Fix:     fmt.Sprintf("Add settings: %s to .flax/flax.cue or pass --set %s=...", key, key),
			})
		case err != nil:
			section.Results = append(section.Results, CheckResult{Status: StatusFail, Label: key, Message: err.Error()})
		case val == "":
			section.Results = append(section.Results, CheckResult{Status: StatusFail, Label: key, Message: "empty"})
		default:
			section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: key, Message: val})
		}
	}

	resolved := 0
	var failed []CheckResult
	var details, perHost []string
	for _, key := range e.DefaultKeys() {
		if isRequired(key, required) {
			continue
		}
		v, err := e.Get(key)
		var missing *env.MissingDefaultError
		if errors.As(err, &missing) && missing.Key != key {
			switch {
			case missing.Key == env.KeyHost:
				perHost = append(perHost, key)
				continue
			case isRequired(missing.Key, required):
				// Already reported above.
				continue
			}
		}
		if err != nil {
			failed = append(failed, CheckResult{
				Status:  StatusFail,
				Label:   key,
				Message: err.Error(),
			})
			continue
		}
		resolved++
		details = append(details, fmt.Sprintf("%s = %v", key, v))
	}

	section.Results = append(section.Results, failed...)
	section.Results = append(section.Results, CheckResult{
		Status:  StatusPass,
		Label:   "Defaults",
		Message: fmt.Sprintf("%d resolved", resolved),
		Details: details,
	})

	if len(perHost) > 0 {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusInfo,
			Label:   "Per host",
			Message: strings.Join(perHost, ", "),
		})
	}

	if !e.IsSet(env.KeyDBPassword) {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusInfo,
			Label:   env.KeyDBPassword,
			Message: "not set (prompted when needed)",
		})
	}

	return section
}

func isRequired(key string, required []string) bool {
	for _, r := range required {
		if r == key {
			return true
		}
	}
	return false
}

// CheckDeployment validates the option values tasks dispatch on.
func CheckDeployment(e *env.Env, workDir string) SectionResult {
	section := SectionResult{Name: "Deployment"}
	str := func(key string) string {
		v, _ := e.String(key)
		return v
	}

	webserver, control := str(env.KeyWebserver), str(env.KeyProcessControl)
	pair := webserver + " + " + control
	if err := tasks.CheckRestart(webserver, control); err != nil {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   "Restart",
			Message: pair + " (unsupported)",
			Fix:     "Use gunicorn + supervisor or apache + sysvinit",
		})
	} else {
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: "Restart", Message: pair})
	}

	if version := str(env.KeyPostgreSQLVersion); tasks.ValidPostgreSQLVersion(version) {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusPass,
			Label:   "PostgreSQL",
			Message: version + " (" + strings.ReplaceAll(tasks.LocalAuthPattern(version), "[[:space:]]+", " ") + ")",
		})
	} else {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   "PostgreSQL",
			Message: fmt.Sprintf("invalid version %q", version),
			Fix:     "Set postgresql_version to a release such as \"9.6\"",
		})
	}

	options := []struct {
		key     string
		allowed []string
	}{
		{env.KeyRequirementsMode, []string{tasks.RequirementsDirectory, tasks.RequirementsFile}},
		{env.KeySupervisorReload, []string{tasks.SupervisorReload, tasks.SupervisorRestart}},
	}
	for _, opt := range options {
		val := str(opt.key)
		if contains(opt.allowed, val) {
			section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: opt.key, Message: val})
			continue
		}
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   opt.key,
			Message: fmt.Sprintf("invalid value %q", val),
			Fix:     "Use one of: " + strings.Join(opt.allowed, ", "),
		})
	}

	production := filepath.Join(workDir, str(env.KeyRequirementsDir), tasks.ProductionRequirements)
	optional, _ := e.Bool(env.KeyRequirementsOptional)
	if _, err := os.Stat(production); err == nil {
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: "Requirements", Message: shortenPath(production)})
	} else {
		status := StatusWarn
		if optional {
			status = StatusInfo
		}
		section.Results = append(section.Results, CheckResult{
			Status:  status,
			Label:   "Requirements",
			Message: shortenPath(production) + " (not found)",
			Fix:     "Create it or set requirements_optional: true",
		})
	}

	return section
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// CheckRoles lists each role with its hosts and warns about configured
// hosts that belong to no role.
func CheckRoles(table *roles.Table, hosts []string) SectionResult {
	section := SectionResult{Name: "Roles"}

	names := table.Roles()
	defined := 0
	for _, role := range names {
		roleHosts, _ := table.HostsFor(role)
		if len(roleHosts) == 0 {
			continue
		}
		defined++
		section.Results = append(section.Results, CheckResult{
			Status:  StatusPass,
			Label:   role,
			Message: strings.Join(roleHosts, ", "),
		})
	}
	if defined == 0 {
		section.Results = append(section.Results, CheckResult{Status: StatusInfo, Label: "None configured"})
	} else {
		section.Summary = fmt.Sprintf("%d defined", defined)
	}

	for _, h := range hosts {
		names := []string{h}
		if hs, err := remote.ParseHostString(h); err == nil {
			names = append(names, hs.Host)
		}
		if len(table.RolesFor(names...)) > 0 {
			continue
		}
		section.Results = append(section.Results, CheckResult{
			Status:  StatusWarn,
			Label:   h,
			Message: "in no role",
			Fix:     "Add the host to roledefs or install_debs installs nothing",
		})
	}

	return section
}

// CheckTools reports which local programs are on PATH. Missing tools are
// warnings: only clone_db needs them.
func CheckTools(lookPath func(string) (string, error)) SectionResult {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	section := SectionResult{Name: "Local tools"}

	found := 0
	for _, tool := range LocalTools {
		path, err := lookPath(tool)
		if err != nil {
			section.Results = append(section.Results, CheckResult{
				Status:  StatusWarn,
				Label:   tool,
				Message: "NOT FOUND",
				Fix:     fmt.Sprintf("Install %s to use clone_db", tool),
			})
			continue
		}
		found++
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: tool, Message: path})
	}
	section.Summary = fmt.Sprintf("%d of %d found", found, len(LocalTools))

	return section
}

// SSHOptions selects the credentials CheckSSH inspects.
type SSHOptions struct {
	KeyFiles       []string
	KnownHostsFile string
	Insecure       bool
}

// CheckSSH reports the available SSH authentication and host key sources.
func CheckSSH(opts SSHOptions) SectionResult {
	section := SectionResult{Name: "SSH"}

	agentKeys, agentErr := remote.AgentKeyCount()
	if agentErr != nil {
		section.Results = append(section.Results, CheckResult{Status: StatusInfo, Label: "Agent", Message: agentErr.Error()})
	} else {
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: "Agent", Message: fmt.Sprintf("%d keys", agentKeys)})
	}

	usableKeys := 0
	for _, f := range opts.KeyFiles {
		if err := remote.CheckKeyFile(f); err != nil {
			section.Results = append(section.Results, CheckResult{
				Status:  StatusWarn,
				Label:   shortenPath(f),
				Message: err.Error(),
			})
			continue
		}
		usableKeys++
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: shortenPath(f)})
	}

	if agentKeys == 0 && usableKeys == 0 {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   "Authentication",
			Message: "no usable key",
			Fix:     "Start ssh-agent and ssh-add a key, or pass --identity",
		})
	}

	if opts.Insecure {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusWarn,
			Label:   "Host keys",
			Message: "verification disabled",
		})
		return section
	}
	if err := remote.CheckKnownHosts(opts.KnownHostsFile); err != nil {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   "Known hosts",
			Message: err.Error(),
			Fix:     "ssh to each host once to record its key",
		})
	} else {
		file := opts.KnownHostsFile
		if file == "" {
			file = "~/.ssh/known_hosts"
		}
		section.Results = append(section.Results, CheckResult{Status: StatusPass, Label: "Known hosts", Message: file})
	}

	return section
}

// CheckEnvironment validates runtime environment.
func CheckEnvironment(paths config.Paths) SectionResult {
	section := SectionResult{Name: "Environment"}

	if paths.GlobalExists {
		if isWritable(paths.Global) {
			section.Results = append(section.Results, CheckResult{
				Status:  StatusPass,
				Label:   "Config directory",
				Message: "writable",
			})
		} else {
			section.Results = append(section.Results, CheckResult{
				Status:  StatusFail,
				Label:   "Config directory",
				Message: "not writable",
				Fix:     fmt.Sprintf("Check permissions on %s", paths.Global),
			})
		}
	}

	workDir := paths.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			section.Results = append(section.Results, CheckResult{
				Status:  StatusFail,
				Label:   "Working directory",
				Message: fmt.Sprintf("Cannot access: %v", err),
			})
			return section
		}
		workDir = wd
	}
	section.Results = append(section.Results, CheckResult{
		Status:  StatusPass,
		Label:   "Working directory",
		Message: shortenPath(workDir),
	})

	envFile := filepath.Join(workDir, config.EnvFileName)
	if vars, err := config.ReadDotEnv(envFile); err == nil {
		n := len(config.EnvSettings(environ(vars)))
		section.Results = append(section.Results, CheckResult{
			Status:  StatusPass,
			Label:   config.EnvFileName,
			Message: fmt.Sprintf("%d %s settings", n, strings.TrimSuffix(config.EnvPrefix, "_")),
		})
	} else if !errors.Is(err, os.ErrNotExist) {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusFail,
			Label:   config.EnvFileName,
			Message: err.Error(),
		})
	}

	if paths.LocalExists && !temp.CheckGitignore(workDir) {
		section.Results = append(section.Results, CheckResult{
			Status:  StatusWarn,
			Label:   ".gitignore",
			Message: ".flax/temp not ignored",
			Fix:     "Add .flax/temp/ to .gitignore",
		})
	}

	return section
}

func environ(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}

// shortenPath replaces home directory with ~.
func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

// isWritable checks if a directory is writable.
func isWritable(dir string) bool {
	testFile := filepath.Join(dir, ".write-test")
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	_ = f.Close()
	_ = os.Remove(testFile)
	return true
}

package cli

import (
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/flax/internal/config"
	"github.com/grantcarthew/flax/internal/doctor"
	"github.com/grantcarthew/flax/internal/env"
	"github.com/grantcarthew/flax/internal/remote"
)

// requiredSettings must be configured before any task can run.
var requiredSettings = []string{env.KeyProjectName, env.KeyRepository}

// doctorOptions holds the flags of the doctor command.
type doctorOptions struct {
	identities      []string
	knownHosts      string
	insecureHostKey bool
}

// addDoctorCommand adds the doctor command to the parent command.
func addDoctorCommand(parent *cobra.Command) {
	opts := &doctorOptions{}

	cmd := &cobra.Command{
		Use:     "doctor",
		GroupID: "utilities",
		Short:   "Diagnose flax installation and configuration",
		Long: `Performs a health check of flax configuration and the local environment.
Reports issues, warnings, and suggestions.

Checks performed:
  - Version and build information
  - Configuration file validation (CUE syntax and schema)
  - Settings and default resolution
  - Deployment options (web server, process control, requirements)
  - Role definitions
  - Local tools used by clone_db
  - SSH agent, keys and known hosts
  - Environment (directory permissions, .env, .gitignore)

Exit codes:
  0 - All checks passed
  1 - Issues found`,
		Args: noArgsOrHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shown, err := checkHelpArg(cmd, args); shown || err != nil {
				return err
			}
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.identities, "identity", "i", nil, "SSH private key file to check (repeatable)")
	cmd.Flags().StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	cmd.Flags().BoolVar(&opts.insecureHostKey, "insecure-host-key", false, "Host key verification will be skipped")

	parent.AddCommand(cmd)
}

// runDoctor executes the doctor command.
func runDoctor(cmd *cobra.Command, opts *doctorOptions) error {
	flags := getFlags(cmd)

	report, err := prepareDoctor(flags, opts)
	if err != nil {
		return err
	}

	reporter := doctor.NewReporter(cmd.OutOrStdout(), flags.Verbose, flags.Quiet)
	reporter.Print(report)

	if report.HasIssues() {
		// Return a silent error to set exit code 1
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		return errDoctorIssuesFound
	}

	return nil
}

// errDoctorIssuesFound is returned when doctor finds issues.
// It implements SilentError so main.go skips printing it.
var errDoctorIssuesFound = &doctorError{}

type doctorError struct{}

func (e *doctorError) Error() string { return "issues found" }
func (e *doctorError) Silent() bool  { return true }

// prepareDoctor runs all checks and builds the report.
func prepareDoctor(flags *Flags, opts *doctorOptions) (doctor.Report, error) {
	var report doctor.Report

	report.Sections = append(report.Sections, doctor.CheckIntro())

	buildInfo := doctor.DefaultBuildInfo()
	buildInfo.Version = cliVersion
	buildInfo.Commit = commit
	buildInfo.BuildDate = buildDate
	report.Sections = append(report.Sections, doctor.CheckVersion(buildInfo))

	dir, err := workDir(flags)
	if err != nil {
		return report, err
	}
	paths, err := config.ResolvePaths(dir)
	if err != nil {
		return report, err
	}
	report.Sections = append(report.Sections, doctor.CheckConfiguration(paths))

	schemas, err := doctor.LoadSchemas()
	if err != nil {
		return report, err
	}
	report.Sections = append(report.Sections, doctor.CheckSchemaValidation(paths, schemas))

	// The store is built without the db_password prompt so checks never block.
	proj, loadErr := loadProject(flags, config.ScopeMerged, nil, environ())
	if loadErr == nil {
		e := proj.base.Clone()
		if len(proj.loaded.Hosts) > 0 {
			if he, _, err := proj.hostEnv(proj.loaded.Hosts[0]); err == nil {
				e = he
			}
		}
		report.Sections = append(report.Sections,
			doctor.CheckSettings(e, requiredSettings),
			doctor.CheckDeployment(e, proj.workDir),
			doctor.CheckRoles(proj.roles, proj.loaded.Hosts),
		)
	} else {
		debugf(flags, "doctor", "configuration not loaded: %v", loadErr)
		for _, name := range []string{"Settings", "Deployment", "Roles"} {
			report.Sections = append(report.Sections, doctor.SectionResult{
				Name: name,
				Results: []doctor.CheckResult{
					{Status: doctor.StatusInfo, Label: "Skipped", Message: "no valid config"},
				},
			})
		}
	}

	report.Sections = append(report.Sections, doctor.CheckTools(exec.LookPath))

	keys := opts.identities
	if len(keys) == 0 {
		keys = remote.DefaultKeyFiles()
	}
	report.Sections = append(report.Sections, doctor.CheckSSH(doctor.SSHOptions{
		KeyFiles:       keys,
		KnownHostsFile: opts.knownHosts,
		Insecure:       opts.insecureHostKey,
	}))

	report.Sections = append(report.Sections, doctor.CheckEnvironment(paths))

	return report, nil
}

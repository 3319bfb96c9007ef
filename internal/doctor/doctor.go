// Package doctor provides health check diagnostics for flax configuration
// and the local deployment environment.
package doctor

import (
	"runtime"

	"github.com/fatih/color"
)

// Status represents the result status of a check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
	StatusInfo
)

type statusStyle struct {
	name   string
	symbol string
	color  *color.Color
}

var statusStyles = map[Status]statusStyle{
	StatusPass: {"pass", "✓", color.New(color.FgGreen)},
	StatusWarn: {"warn", "⚠", color.New(color.FgYellow)},
	StatusFail: {"fail", "✗", color.New(color.FgRed)},
	StatusInfo: {"info", "-", color.New(color.Faint)},
}

var unknownStatus = statusStyle{"unknown", "?", color.New(color.Faint)}

func (s Status) style() statusStyle {
	if st, ok := statusStyles[s]; ok {
		return st
	}
	return unknownStatus
}

func (s Status) String() string { return s.style().name }

// Symbol returns the display symbol for a Status.
func (s Status) Symbol() string { return s.style().symbol }

// IsIssue reports whether s makes doctor exit non-zero.
func (s Status) IsIssue() bool {
	return s == StatusWarn || s == StatusFail
}

// CheckResult holds the result of a single check item.
type CheckResult struct {
	Status  Status
	Label   string   // e.g. "rsync", "project_name"
	Message string   // e.g. "/usr/bin/rsync", "not set"
	Fix     string   // printed under warnings and failures
	Details []string // printed in verbose mode
}

// SectionResult holds the results for a check section.
type SectionResult struct {
	Name    string
	Results []CheckResult
	Summary string // e.g. "2 defined"
	// Plain sections print "label: message" lines without status symbols.
	Plain bool
}

// Issue is a warning or failure and the section that reported it.
type Issue struct {
	Section string
	CheckResult
}

// Report holds the complete diagnostic report.
type Report struct {
	Sections []SectionResult
}

// Issues returns warnings and failures in report order.
func (r Report) Issues() []Issue {
	var issues []Issue
	for _, s := range r.Sections {
		for _, c := range s.Results {
			if c.Status.IsIssue() {
				issues = append(issues, Issue{Section: s.Name, CheckResult: c})
			}
		}
	}
	return issues
}

// HasIssues reports whether any check warned or failed.
func (r Report) HasIssues() bool {
	return len(r.Issues()) > 0
}

// Count returns the number of results with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, sec := range r.Sections {
		for _, c := range sec.Results {
			if c.Status == s {
				n++
			}
		}
	}
	return n
}

// BuildInfo holds version and build information.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	Platform  string
}

// DefaultBuildInfo returns build info with runtime defaults.
func DefaultBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   "dev",
		Commit:    "unknown",
		BuildDate: "unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

const (
	RepoURL   = "https://github.com/grantcarthew/flax"
	IssuesURL = RepoURL + "/issues"
)

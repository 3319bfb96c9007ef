package doctor

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/grantcarthew/flax/internal/tui"
)

var (
	colorTitle = color.New(color.FgGreen)
	colorRule  = color.New(color.FgMagenta)
)

const ruleWidth = 59

// Reporter writes a Report for a terminal.
type Reporter struct {
	w       io.Writer
	verbose bool
	quiet   bool
}

// NewReporter creates a reporter. Verbose adds result details; quiet prints
// only issues, one per line.
func NewReporter(w io.Writer, verbose, quiet bool) *Reporter {
	return &Reporter{w: w, verbose: verbose, quiet: quiet}
}

// Print writes report.
func (r *Reporter) Print(report Report) {
	if r.quiet {
		for _, issue := range report.Issues() {
			r.printf("%s %s %s\n", issueWord(issue.Status), tui.Bracket("%s", issue.Section), labelled(issue.CheckResult, ": "))
		}
		return
	}

	r.printf("\n")
	r.title("flax doctor", "═")
	r.printf("\n")
	for _, section := range report.Sections {
		r.printSection(section)
	}
	r.printSummary(report)
}

func (r *Reporter) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.w, format, a...)
}

func (r *Reporter) title(text, rule string) {
	_, _ = colorTitle.Fprintln(r.w, text)
	_, _ = colorRule.Fprintln(r.w, strings.Repeat(rule, ruleWidth))
}

func (r *Reporter) printSection(section SectionResult) {
	name := section.Name
	if c := tui.SectionColor(name); c != nil {
		name = c.Sprint(name)
	}
	if section.Summary != "" {
		name += " " + tui.Annotate("%s", section.Summary)
	}
	r.printf("%s\n", name)

	for _, result := range section.Results {
		if section.Plain {
			r.printPlain(result)
			continue
		}
		r.printResult(result)
	}
	r.printf("\n")
}

// printPlain prints "label: message" aligned, or the bare label.
func (r *Reporter) printPlain(result CheckResult) {
	if result.Message == "" {
		r.printf("  %s\n", result.Label)
		return
	}
	r.printf("  %-10s %s\n", result.Label+":", tui.ColorDim.Sprint(result.Message))
}

func (r *Reporter) printResult(result CheckResult) {
	st := result.Status.style()
	r.printf("  %s %s\n", st.color.Sprint(st.symbol), labelled(result, " - "))

	if result.Fix != "" && result.Status.IsIssue() {
		r.printf("    %s\n", tui.ColorDim.Sprint("Fix: "+result.Fix))
	}
	if r.verbose {
		for _, detail := range result.Details {
			r.printf("    %s\n", tui.ColorDim.Sprint(detail))
		}
	}
}

func (r *Reporter) printSummary(report Report) {
	r.title("Summary", "─")

	issues := report.Issues()
	if len(issues) == 0 {
		_, _ = StatusPass.style().color.Fprintln(r.w, "  No issues found")
		r.printf("\n")
		return
	}

	var counts []string
	for _, s := range []Status{StatusFail, StatusWarn} {
		if n := report.Count(s); n > 0 {
			word := "error"
			if s == StatusWarn {
				word = "warning"
			}
			counts = append(counts, s.style().color.Sprint(plural(n, word)))
		}
	}
	r.printf("  %s found\n\n", strings.Join(counts, ", "))

	r.printf("Issues:\n")
	for _, issue := range issues {
		st := issue.Status.style()
		r.printf("  %s %s %s\n", st.color.Sprint(st.symbol), tui.Bracket("%s", issue.Section), labelled(issue.CheckResult, ": "))
	}
}

// labelled joins a result's label and dimmed message with sep.
func labelled(result CheckResult, sep string) string {
	if result.Message == "" {
		return result.Label
	}
	return result.Label + sep + tui.ColorDim.Sprint(result.Message)
}

func issueWord(s Status) string {
	st := s.style()
	if s == StatusFail {
		return st.color.Sprint("Error:")
	}
	return st.color.Sprint("Warning:")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Package tui holds terminal presentation helpers shared by the commands.
package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	ColorDim  = color.New(color.Faint)
	ColorCyan = color.New(color.FgCyan)

	// Section colours for doctor and show output.
	ColorSettings   = color.New(color.FgBlue)
	ColorRoles      = color.New(color.FgGreen)
	ColorDeployment = color.New(color.FgCyan)
	ColorSSH        = color.New(color.FgHiYellow)
)

// SectionColor returns the colour for a report section, or nil for sections
// printed plain. Matching is case-insensitive.
func SectionColor(name string) *color.Color {
	switch strings.ToLower(name) {
	case "settings":
		return ColorSettings
	case "roles":
		return ColorRoles
	case "deployment":
		return ColorDeployment
	case "ssh":
		return ColorSSH
	default:
		return nil
	}
}

// Annotate returns text wrapped in cyan parentheses with dim content: (text)
func Annotate(format string, a ...any) string {
	text := fmt.Sprintf(format, a...)
	return ColorCyan.Sprint("(") + ColorDim.Sprint(text) + ColorCyan.Sprint(")")
}

// Bracket returns text wrapped in cyan square brackets with dim content: [text]
func Bracket(format string, a ...any) string {
	text := fmt.Sprintf(format, a...)
	return ColorCyan.Sprint("[") + ColorDim.Sprint(text) + ColorCyan.Sprint("]")
}

// Progress provides an in-place progress indicator using carriage return.
// Each Update overwrites the previous line. Done clears it.
// When the writer is not a terminal, or quiet is set, Update and Done are
// no-ops.
type Progress struct {
	w     io.Writer
	on    bool
	width int // length of the last written line, for clearing
}

// NewProgress creates a progress writer.
func NewProgress(w io.Writer, quiet bool) *Progress {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &Progress{w: w, on: tty && !quiet}
}

// Update writes a progress message, overwriting the previous line.
func (p *Progress) Update(format string, a ...any) {
	if !p.on {
		return
	}
	msg := fmt.Sprintf(format, a...)
	msgWidth := utf8.RuneCountInString(msg)
	padding := ""
	if msgWidth < p.width {
		padding = strings.Repeat(" ", p.width-msgWidth)
	}
	p.width = msgWidth
	_, _ = fmt.Fprintf(p.w, "\r%s%s", msg, padding)
}

// Done clears the progress line and resets.
func (p *Progress) Done() {
	if !p.on || p.width == 0 {
		return
	}
	_, _ = fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", p.width))
	p.width = 0
}

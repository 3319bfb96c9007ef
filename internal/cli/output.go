package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	colorError     = color.New(color.FgRed)
	colorWarning   = color.New(color.FgYellow)
	colorSuccess   = color.New(color.FgGreen)
	colorHeader    = color.New(color.FgGreen)
	colorSeparator = color.New(color.FgMagenta)
	colorHost      = color.New(color.FgCyan)
	colorDim       = color.New(color.Faint)
)

// PrintError prints an error message in red.
func PrintError(w io.Writer, format string, args ...interface{}) {
	_, _ = colorError.Fprintf(w, "Error: ")
	_, _ = fmt.Fprintf(w, format, args...)
	_, _ = fmt.Fprintln(w)
}

// PrintWarning prints a warning message in yellow.
func PrintWarning(w io.Writer, format string, args ...interface{}) {
	_, _ = colorWarning.Fprintf(w, "Warning: ")
	_, _ = fmt.Fprintf(w, format, args...)
	_, _ = fmt.Fprintln(w)
}

// PrintSuccess prints a success marker (checkmark) in green.
func PrintSuccess(w io.Writer, text string) {
	_, _ = colorSuccess.Fprintf(w, "✓")
	_, _ = fmt.Fprintf(w, " %s\n", text)
}

// PrintHeader prints a header/title in green with a leading blank line.
func PrintHeader(w io.Writer, text string) {
	_, _ = fmt.Fprintln(w)
	_, _ = colorHeader.Fprintln(w, text)
}

// PrintSeparator prints a separator line in magenta.
func PrintSeparator(w io.Writer) {
	_, _ = colorSeparator.Fprintln(w, strings.Repeat("─", 79))
}

// PrintKeyValues prints key = value lines with keys aligned.
func PrintKeyValues(w io.Writer, keys []string, values map[string]string) {
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %-*s ", width, k)
		_, _ = colorDim.Fprint(w, "=")
		_, _ = fmt.Fprintf(w, " %s\n", values[k])
	}
}

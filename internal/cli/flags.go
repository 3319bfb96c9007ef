package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Flags holds the persistent flags shared by every command.
type Flags struct {
	Directory string
	Quiet     bool
	Verbose   bool
	Debug     bool
	NoColor   bool
}

// flagsKey is the context key for *Flags.
type flagsKey struct{}

// debugOut receives debug lines. Tests replace it.
var debugOut io.Writer = os.Stderr

// getFlags returns the flags stored by the root PersistentPreRunE.
// Commands run outside the root (tests) get zero-value flags.
func getFlags(cmd *cobra.Command) *Flags {
	if ctx := cmd.Context(); ctx != nil {
		if f, ok := ctx.Value(flagsKey{}).(*Flags); ok {
			return f
		}
	}
	return &Flags{}
}

// debugf prints a debug line when --debug is set.
func debugf(flags *Flags, category, format string, args ...interface{}) {
	if !flags.Debug {
		return
	}
	_, _ = fmt.Fprintf(debugOut, "[DEBUG] %s: %s\n", category, fmt.Sprintf(format, args...))
}

// noArgsOrHelp accepts no arguments, or the single argument "help".
func noArgsOrHelp(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || (len(args) == 1 && args[0] == "help") {
		return nil
	}
	return unknownCommandError(cmd.CommandPath(), args[0])
}

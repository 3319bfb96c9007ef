package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grantcarthew/flax/internal/tasks"
	"github.com/grantcarthew/flax/internal/tui"
)

// addListCommand adds the list command to the parent command.
func addListCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls", "tasks"},
		GroupID: "commands",
		Short:   "List available tasks",
		Long: `List the tasks flax run accepts, with their aliases and descriptions.

Tasks marked with "..." take arguments after a colon.`,
		Args: noArgsOrHelp,
		RunE: runList,
	}

	parent.AddCommand(cmd)
}

// runList executes the list command.
func runList(cmd *cobra.Command, args []string) error {
	if shown, err := checkHelpArg(cmd, args); shown || err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	all := tasks.All()

	names := make([]string, len(all))
	width := 0
	for i, t := range all {
		name := t.Name
		if t.Variadic {
			name += ":..."
		}
		names[i] = name
		width = max(width, len(name))
	}

	if !getFlags(cmd).Quiet {
		PrintHeader(w, "Available tasks:")
		_, _ = fmt.Fprintln(w)
	}
	for i, t := range all {
		_, _ = fmt.Fprintf(w, "  %-*s  %s", width, names[i], t.Description)
		if len(t.Aliases) > 0 {
			_, _ = fmt.Fprint(w, " "+tui.Annotate("alias: %s", strings.Join(t.Aliases, ", ")))
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// completionShell is one supported shell: how to generate its script and
// where the script is installed for every new session.
type completionShell struct {
	name    string
	load    string
	install string
	gen     func(root *cobra.Command, w io.Writer) error
}

var completionShells = []completionShell{
	{
		name:    "bash",
		load:    "source <(flax completion bash)",
		install: "flax completion bash > ~/.local/share/bash-completion/completions/flax",
		gen: func(root *cobra.Command, w io.Writer) error {
			return root.GenBashCompletionV2(w, true)
		},
	},
	{
		name:    "zsh",
		load:    "source <(flax completion zsh)",
		install: `flax completion zsh > "${fpath[1]}/_flax"`,
		gen: func(root *cobra.Command, w io.Writer) error {
			return root.GenZshCompletion(w)
		},
	},
	{
		name:    "fish",
		load:    "flax completion fish | source",
		install: "flax completion fish > ~/.config/fish/completions/flax.fish",
		gen: func(root *cobra.Command, w io.Writer) error {
			return root.GenFishCompletion(w, true)
		},
	},
}

// addCompletionCommand adds the completion command to the parent command.
func addCompletionCommand(parent *cobra.Command) {
	completionCmd := &cobra.Command{
		Use:     "completion",
		Aliases: []string{"completions"},
		GroupID: "utilities",
		Short:   "Generate shell completion scripts",
		Long: `Generate a completion script for bash, zsh or fish.

Completion covers commands, flags and the task names accepted by flax run.`,
	}

	for _, sh := range completionShells {
		completionCmd.AddCommand(newCompletionCmd(sh))
	}
	parent.AddCommand(completionCmd)
}

func newCompletionCmd(sh completionShell) *cobra.Command {
	return &cobra.Command{
		Use:   sh.name,
		Short: fmt.Sprintf("Generate %s completion script", sh.name),
		Long: fmt.Sprintf(`Write the %[1]s completion script to stdout.

Load it into the current session:

    %[2]s

Install it for every new session:

    %[3]s`, sh.name, sh.load, sh.install),
		Args:              noArgsOrHelp,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shown, err := checkHelpArg(cmd, args); shown || err != nil {
				return err
			}
			return sh.gen(cmd.Root(), cmd.OutOrStdout())
		},
	}
}

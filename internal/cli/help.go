package cli

import (
	_ "embed"
	"fmt"

	"github.com/spf13/cobra"
)

//go:embed help/config.md
var configHelp string

//go:embed help/settings.md
var settingsHelp string

// addHelpCommand replaces Cobra's default help command with one that adds
// reference topics (config, settings).
func addHelpCommand(root *cobra.Command) {
	helpCmd := &cobra.Command{
		Use:     "help [command]",
		Short:   "Help about any command or topic",
		GroupID: "utilities",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				_ = root.Help()
				return
			}
			target, _, err := root.Find(args)
			if err != nil || target == nil || target == root {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unknown help topic: %s\n", args[0])
				return
			}
			_ = target.Help()
		},
	}

	helpCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Configuration file reference",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), configHelp)
		},
	})

	helpCmd.AddCommand(&cobra.Command{
		Use:   "settings",
		Short: "Settings and their defaults",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), settingsHelp)
		},
	})

	root.SetHelpCommand(helpCmd)
	root.InitDefaultHelpCmd()
}

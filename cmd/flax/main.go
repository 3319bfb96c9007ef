package main

import (
	"os"

	"github.com/grantcarthew/flax/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		if !cli.IsSilentError(err) {
			cli.PrintError(os.Stderr, "%v", err)
		}
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe-sync",
		Short: "Background sync agent for your recipe collection",
		Long: `recipe-sync keeps a local folder of recipes in sync with your
Recipe Sync account. Sign in once with "recipe-sync login", then run
"recipe-sync daemon" to sync continuously in the background.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newDaemonCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
	)

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/grovetools/weave/cli"
	"github.com/grovetools/weave/cmd"
)

func main() {
	rootCmd := cli.NewStandardCommand(
		"weave",
		"Multi-session terminal daemon for command-line assistants",
	)

	rootCmd.AddCommand(cmd.NewDaemonCmd())
	rootCmd.AddCommand(cmd.NewSessionsCmd())
	rootCmd.AddCommand(cmd.NewHostsCmd())
	rootCmd.AddCommand(cmd.NewPathsCmd())
	rootCmd.AddCommand(cmd.NewVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

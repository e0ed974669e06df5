package cmd

import (
	"fmt"

	"github.com/grovetools/weave/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd prints build information.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the weave version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.GetInfo().String())
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/grovetools/weave/pkg/paths"
	"github.com/spf13/cobra"
)

// NewPathsCmd prints the resolved weave paths for debugging.
func NewPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show resolved weave paths",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("config:       %s\n", paths.ConfigDir())
			fmt.Printf("data:         %s\n", paths.DataDir())
			fmt.Printf("state:        %s\n", paths.StateDir())
			fmt.Printf("sessions:     %s\n", paths.SessionsFilePath())
			fmt.Printf("instance-id:  %s\n", paths.InstanceIDPath())
			fmt.Printf("socket:       %s\n", paths.SocketPath())
			fmt.Printf("pidfile:      %s\n", paths.PidFilePath())
			fmt.Printf("logs:         %s\n", paths.LogDir())
			fmt.Printf("claude:       %s\n", paths.ClaudeDir())
			fmt.Printf("copilot:      %s\n", paths.CopilotDir())
		},
	}
}

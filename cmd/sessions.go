package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/grovetools/weave/cli"
	"github.com/grovetools/weave/pkg/daemon"
	"github.com/grovetools/weave/pkg/paths"
	"github.com/spf13/cobra"
)

// NewSessionsCmd lists the daemon's sessions.
func NewSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List supervised sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemon.NewRemoteClient(paths.SocketPath())
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.IsRunning() {
				return fmt.Errorf("daemon is not running; start it with 'weave daemon start'")
			}

			sessions, err := client.GetSessions(context.Background())
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(sessions)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tSTATUS\tDIR\tMODEL\tLAST MESSAGE")
			for _, s := range sessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Name, s.Kind, s.Status, s.Metadata.WorkingDir, s.Metadata.Model, s.Metadata.LastMessage)
			}
			return tw.Flush()
		},
	}
}

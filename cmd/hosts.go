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

// NewHostsCmd lists peers discovered on the LAN.
func NewHostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List discovered peer hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemon.NewRemoteClient(paths.SocketPath())
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.IsRunning() {
				return fmt.Errorf("daemon is not running; start it with 'weave daemon start'")
			}

			status, err := client.GetTunnelStatus(context.Background())
			if err != nil {
				return err
			}
			if !status.Enabled {
				fmt.Println("Peer fabric is disabled (no git user.email configured, or tunnel.disabled set in weave.yml)")
				return nil
			}

			hosts, err := client.GetHosts(context.Background())
			if err != nil {
				return err
			}

			if cli.GetOptions(cmd).JSONOutput {
				return json.NewEncoder(os.Stdout).Encode(hosts)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INSTANCE\tHOSTNAME\tADDRESS\tPORT\tSTATUS")
			for _, h := range hosts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", h.InstanceID, h.Hostname, h.Address, h.Port, h.Status)
			}
			return tw.Flush()
		},
	}
}

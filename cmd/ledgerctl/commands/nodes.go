package commands

import (
	"github.com/spf13/cobra"
)

var pingFirst bool

// NewNodesCmd returns the command that prints the state of the nodes.
func NewNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Show the nodes of the network and their health",
		Args:  cobra.NoArgs,
		RunE:  nodes,
	}
	cmd.Flags().BoolVar(&pingFirst, "ping", false, "Ping every node first")
	return cmd
}

func nodes(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if pingFirst {
		ctx, cancel := interruptible()
		defer cancel()

		// failures show in the node stats
		if err := c.PingAll(ctx); err != nil {
			c.Logger().WithError(err).Warn("Ping failed")
		}
	}

	return printJSON(cmd.OutOrStdout(), c.GetStats().Nodes)
}

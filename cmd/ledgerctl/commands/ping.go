package commands

import (
	"fmt"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/spf13/cobra"
)

// NewPingCmd returns the command that pings one node, or all of them.
func NewPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping [node-account]",
		Short: "Check that nodes answer",
		Args:  cobra.MaximumNArgs(1),
		RunE:  ping,
	}
	return cmd
}

func ping(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()

	if len(args) == 0 {
		if err := c.PingAll(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d nodes answered\n", len(c.Network().AccountIDs()))
		return nil
	}

	id, err := ledger.AccountIDFromString(args[0])
	if err != nil {
		return err
	}

	if err := c.Ping(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s answered\n", id)

	return nil
}

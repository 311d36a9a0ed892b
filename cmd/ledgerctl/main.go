package main

import (
	"os"

	cmd "github.com/mosaicnetworks/ledgerclient/cmd/ledgerctl/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.NewPingCmd(),
		cmd.NewBalanceCmd(),
		cmd.NewInfoCmd(),
		cmd.NewNodesCmd(),
		cmd.NewAddressBookCmd(),
		cmd.NewTopicCmd(),
		cmd.NewServeCmd(),
		cmd.NewKeygenCmd(),
		cmd.VersionCmd,
	)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

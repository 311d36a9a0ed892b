package commands

import (
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/query"
	"github.com/spf13/cobra"
)

var maxPayment float64

// NewBalanceCmd returns the command that prints the balance of an account.
func NewBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance <account>",
		Short: "Show the balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE:  balance,
	}
	return cmd
}

func balance(cmd *cobra.Command, args []string) error {
	id, err := ledger.AccountIDFromString(args[0])
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()

	res, err := query.NewAccountBalanceQuery().SetAccountID(id).Execute(ctx, c)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), res)
}

// NewInfoCmd returns the command that prints the information of an account.
// The query is paid by the operator.
func NewInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <account>",
		Short: "Show the information of an account",
		Args:  cobra.ExactArgs(1),
		RunE:  info,
	}
	cmd.Flags().Float64Var(&maxPayment, "max-payment", 0, "Maximum hbar the query may cost (default --max-query-payment)")
	return cmd
}

func info(cmd *cobra.Command, args []string) error {
	id, err := ledger.AccountIDFromString(args[0])
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()

	q := query.NewAccountInfoQuery().SetAccountID(id)
	if maxPayment > 0 {
		q.SetMaxQueryPayment(ledger.NewHbar(maxPayment))
	}

	res, err := q.Execute(ctx, c)
	if err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), res)
}

package commands

import (
	"fmt"

	"github.com/mosaicnetworks/ledgerclient/src/addressbook"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/mirror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	addressBookFile  string
	addressBookLimit int32
	saveAddressBook  bool
)

// NewAddressBookCmd returns the command that fetches the address book from
// the mirror network.
func NewAddressBookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address-book",
		Short: "Fetch the address book from the mirror network",
		Args:  cobra.NoArgs,
		RunE:  fetchAddressBook,
	}
	cmd.Flags().StringVar(&addressBookFile, "file", mirror.DefaultAddressBookFile.String(), "Address book file")
	cmd.Flags().Int32Var(&addressBookLimit, "limit", 0, "Maximum number of nodes, 0 for all")
	cmd.Flags().BoolVar(&saveAddressBook, "save", false, "Save to [datadir]/address_book.json")
	return cmd
}

func fetchAddressBook(cmd *cobra.Command, args []string) error {
	fileID, err := ledger.AccountIDFromString(addressBookFile)
	if err != nil {
		return err
	}

	if len(_config.MirrorNetwork) == 0 {
		return errors.New("no mirror network configured")
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := interruptible()
	defer cancel()

	entries, err := mirror.NewAddressBookQuery().
		SetFileID(fileID).
		SetLimit(addressBookLimit).
		Execute(ctx, c)
	if err != nil {
		return err
	}

	book := addressbook.FromProto(entries)

	if saveAddressBook {
		path := _config.AddressBookFile()
		if err := addressbook.NewJSONAddressBook(path).Write(book); err != nil {
			return errors.Wrap(err, "saving address book")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Address book saved to: %s\n", path)
	}

	return printJSON(cmd.OutOrStdout(), book)
}

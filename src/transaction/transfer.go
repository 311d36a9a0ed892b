package transaction

import (
	"sort"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
)

// TransferTransaction moves hbar between accounts. The amounts of a valid
// transfer sum to zero.
type TransferTransaction struct {
	Transaction

	transfers map[ledger.AccountID]int64
}

// NewTransferTransaction ...
func NewTransferTransaction() *TransferTransaction {
	t := &TransferTransaction{
		transfers: make(map[ledger.AccountID]int64),
	}
	t.Transaction.init(t)
	return t
}

// AddHbarTransfer adds amount to the transfer of an account. Negative amounts
// debit the account.
func (t *TransferTransaction) AddHbarTransfer(id ledger.AccountID, amount ledger.Hbar) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireNotFrozen(); err != nil {
		return err
	}
	t.transfers[id] += amount.AsTinybar()
	return nil
}

// HbarTransfers ...
func (t *TransferTransaction) HbarTransfers() map[ledger.AccountID]ledger.Hbar {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := make(map[ledger.AccountID]ledger.Hbar, len(t.transfers))
	for id, amount := range t.transfers {
		res[id] = ledger.HbarFromTinybars(amount)
	}
	return res
}

// Name ...
func (t *TransferTransaction) Name() string {
	return "TransferTransaction"
}

// Method ...
func (t *TransferTransaction) Method() string {
	return proto.MethodCryptoTransfer
}

// FillBody writes the transfers in ascending account order.
func (t *TransferTransaction) FillBody(body *proto.TransactionBody) error {
	ids := make([]ledger.AccountID, 0, len(t.transfers))
	for id := range t.transfers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	amounts := make([]proto.AccountAmount, 0, len(ids))
	for _, id := range ids {
		amounts = append(amounts, proto.AccountAmount{AccountID: id, Amount: t.transfers[id]})
	}

	body.CryptoTransfer = &proto.CryptoTransferBody{
		Transfers: proto.TransferList{AccountAmounts: amounts},
	}
	return nil
}

// Validate checks that there is something to transfer and that no account id
// is unset.
func (t *TransferTransaction) Validate() error {
	if len(t.transfers) == 0 {
		return errors.New("no transfers")
	}
	for id := range t.transfers {
		if id.IsZero() {
			return errors.New("transfer to or from an unset account")
		}
	}
	return nil
}

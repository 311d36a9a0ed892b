package query

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/mosaicnetworks/ledgerclient/src/transaction"
	"github.com/pkg/errors"
)

// Receipt is the outcome of a transaction once it reached consensus.
type Receipt struct {
	TransactionID ledger.TransactionID `json:"transaction_id"`
	Status        ledger.Status        `json:"status"`
	AccountID     *ledger.AccountID    `json:"account_id,omitempty"`
}

// ReceiptStatusError is returned when a receipt is final but not a success.
type ReceiptStatusError struct {
	Status        ledger.Status
	TransactionID ledger.TransactionID
	Receipt       Receipt
}

// Error ...
func (e *ReceiptStatusError) Error() string {
	return fmt.Sprintf("receipt for transaction %s contained error status %s", e.TransactionID, e.Status)
}

// TransactionReceiptQuery polls the receipt of a transaction until it is
// final. It is free.
type TransactionReceiptQuery struct {
	Query[Receipt]
	transactionID ledger.TransactionID
}

// NewTransactionReceiptQuery ...
func NewTransactionReceiptQuery() *TransactionReceiptQuery {
	q := &TransactionReceiptQuery{}
	q.Query.init(q)
	return q
}

// SetTransactionID ...
func (q *TransactionReceiptQuery) SetTransactionID(id ledger.TransactionID) *TransactionReceiptQuery {
	q.transactionID = id
	return q
}

func (q *TransactionReceiptQuery) name() string {
	return "TransactionReceiptQuery"
}

func (q *TransactionReceiptQuery) method() string {
	return proto.MethodGetTransactionReceipt
}

func (q *TransactionReceiptQuery) paymentRequired() bool {
	return false
}

func (q *TransactionReceiptQuery) validate() error {
	if q.transactionID.IsZero() {
		return errors.New("transaction id is required")
	}
	return nil
}

func (q *TransactionReceiptQuery) fill(pq *proto.Query, header proto.QueryHeader) {
	pq.Header = header
	pq.TransactionReceipt = &proto.TransactionReceiptQuery{
		TransactionID: proto.NewTransactionID(q.transactionID),
	}
}

func (q *TransactionReceiptQuery) decode(resp *proto.Response, nodeID ledger.AccountID) (Receipt, error) {
	if resp.TransactionReceipt == nil {
		return Receipt{}, errors.New("response has no receipt")
	}
	r := resp.TransactionReceipt.Receipt
	return Receipt{
		TransactionID: q.transactionID,
		Status:        r.Status,
		AccountID:     r.AccountID,
	}, nil
}

// classify retries until the node knows the transaction and its receipt
// holds a final status.
func (q *TransactionReceiptQuery) classify(st ledger.Status, resp *proto.Response) executable.ExecutionState {
	switch st {
	case ledger.StatusBusy,
		ledger.StatusUnknown,
		ledger.StatusReceiptNotFound,
		ledger.StatusRecordNotFound,
		ledger.StatusPlatformNotActive:
		return executable.Retry
	case ledger.StatusOk:
	default:
		return executable.RequestError
	}

	if resp.TransactionReceipt == nil {
		return executable.Retry
	}

	switch resp.TransactionReceipt.Receipt.Status {
	case ledger.StatusBusy,
		ledger.StatusUnknown,
		ledger.StatusOk,
		ledger.StatusReceiptNotFound,
		ledger.StatusRecordNotFound,
		ledger.StatusPlatformNotActive:
		return executable.Retry
	default:
		return executable.Success
	}
}

// Validate returns a ReceiptStatusError unless the receipt is a success.
func (r Receipt) Validate() error {
	if r.Status != ledger.StatusSuccess {
		return &ReceiptStatusError{Status: r.Status, TransactionID: r.TransactionID, Receipt: r}
	}
	return nil
}

// GetReceipt waits for the receipt of a submitted transaction, asking the
// node that accepted it. A final status other than SUCCESS is returned as a
// ReceiptStatusError along with the receipt.
func GetReceipt(ctx context.Context, c executable.Client, resp transaction.Response) (Receipt, error) {
	q := NewTransactionReceiptQuery().SetTransactionID(resp.TransactionID)
	q.SetNodeAccountIDs([]ledger.AccountID{resp.NodeID})

	receipt, err := q.Execute(ctx, c)
	if err != nil {
		return Receipt{}, err
	}
	return receipt, receipt.Validate()
}

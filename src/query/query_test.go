package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/client"
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/ledgertest"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/mosaicnetworks/ledgerclient/src/query"
	"github.com/mosaicnetworks/ledgerclient/src/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = ledger.NewAccountID(1001)
	bob   = ledger.NewAccountID(1002)
	token = ledger.NewAccountID(5005)
)

func newClient(t *testing.T, l *ledgertest.Ledger, withOperator bool) *client.Client {
	c, err := client.FromConfig(l.Config(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	l.SetBalance(bob, 500)

	if withOperator {
		id, key := l.NewOperator(t, alice.Num, 1000)
		c.SetOperator(id, key)
	}
	return c
}

func TestAccountBalanceIsFree(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, false)

	balance, err := query.NewAccountBalanceQuery().
		SetAccountID(bob).
		Execute(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, bob, balance.AccountID)
	assert.Equal(t, int64(500), balance.Hbars.AsTinybar())
	assert.Equal(t, 0, l.CostQueries())
	assert.Empty(t, l.Payments())
}

func TestAccountBalanceValidation(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, false)
	c.SetAutoValidateChecksums(true)

	_, err := query.NewAccountBalanceQuery().Execute(context.Background(), c)
	assert.Error(t, err)
}

func TestAccountBalanceUnknownAccount(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, false)

	_, err := query.NewAccountBalanceQuery().
		SetAccountID(ledger.NewAccountID(9999)).
		Execute(context.Background(), c)
	assert.True(t, executable.IsPrecheck(err, ledger.StatusInvalidAccountID), "got %v", err)
}

func TestPaidQueryAsksCostThenPays(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, 50)

	q := query.NewAccountInfoQuery().SetAccountID(bob)

	info, err := q.Execute(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, bob, info.AccountID)
	assert.Equal(t, int64(500), info.Balance.AsTinybar())
	assert.Equal(t, 1, l.CostQueries())

	payments := l.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, int64(50), payments[0].Amount)
	assert.Equal(t, alice, payments[0].Payer)
	assert.Equal(t, uint64(query.PaymentTransactionFee.AsTinybar()), payments[0].Fee)
	assert.Equal(t, q.PaymentTransactionID().String(), payments[0].TransactionID.String())
}

func TestExplicitPaymentSkipsCost(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, 50)

	q := query.NewAccountInfoQuery().SetAccountID(bob)
	q.SetQueryPayment(ledger.HbarFromTinybars(80))

	_, err := q.Execute(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, 0, l.CostQueries())

	payments := l.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, int64(80), payments[0].Amount)
}

func TestExplicitPaymentIgnoresMaxQueryPayment(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	c.SetMaxQueryPayment(ledger.HbarFromTinybars(10))

	q := query.NewAccountInfoQuery().SetAccountID(bob)
	q.SetQueryPayment(ledger.HbarFromTinybars(80))

	_, err := q.Execute(context.Background(), c)
	require.NoError(t, err)
}

func TestMaxQueryPaymentExceeded(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, uint64(ledger.NewHbar(2).AsTinybar()))

	_, err := query.NewAccountInfoQuery().SetAccountID(bob).Execute(context.Background(), c)
	require.Error(t, err)
	assert.True(t, executable.IsMaxQueryPayment(err), "got %v", err)

	var exceeded *executable.MaxQueryPaymentExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, "AccountInfoQuery", exceeded.Query)
	assert.Equal(t, ledger.NewHbar(2), exceeded.Cost)
	assert.Equal(t, ledger.NewHbar(1), exceeded.Max)

	assert.Equal(t, 1, l.CostQueries())
	assert.Empty(t, l.Payments())
}

func TestMaxQueryPaymentOverride(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, uint64(ledger.NewHbar(2).AsTinybar()))

	q := query.NewAccountInfoQuery().SetAccountID(bob)
	q.SetMaxQueryPayment(ledger.NewHbar(3))

	_, err := q.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, l.Payments(), 1)
}

func TestPaidQueryWithoutOperator(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, false)
	l.SetCost(proto.MethodGetAccountInfo, 50)

	_, err := query.NewAccountInfoQuery().SetAccountID(bob).Execute(context.Background(), c)
	assert.ErrorIs(t, err, executable.ErrNoOperator)
}

func TestPaidQueryRetriesBusyWithSamePayment(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, 50)
	l.Script(proto.MethodGetAccountInfo, ledger.StatusBusy)

	q := query.NewAccountInfoQuery().SetAccountID(bob)
	q.SetNodeAccountIDs([]ledger.AccountID{ledgertest.NodeID(2)})

	_, err := q.Execute(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, 2, l.Calls(2, proto.MethodGetAccountInfo)-l.CostQueries())
	assert.Len(t, l.Payments(), 1)
}

func TestPaymentPerNode(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, 50)

	ids := []ledger.AccountID{ledgertest.NodeID(0), ledgertest.NodeID(1), ledgertest.NodeID(2)}

	var payments []*proto.Transaction
	q := query.NewAccountInfoQuery().SetAccountID(bob)
	q.SetNodeAccountIDs(ids)
	q.SetRequestListener(func(pq *proto.Query) { payments = append(payments, pq.Header.Payment) })

	// the first node is down: the answer goes to the second one with its own
	// payment
	l.Down(0, errors.New("connection refused"))

	_, err := q.Execute(context.Background(), c)
	require.NoError(t, err)

	require.Len(t, payments, 1)
	body, _, err := ledgertest.DecodeTransaction(payments[0])
	require.NoError(t, err)
	assert.Equal(t, ledgertest.NodeID(1), body.NodeAccountID)
	assert.Equal(t, map[ledger.AccountID]int64{alice: -50, ledgertest.NodeID(1): 50}, ledgertest.Transfers(body))
}

func TestGetCost(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, 70)

	cost, err := query.NewAccountInfoQuery().SetAccountID(bob).GetCost(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int64(70), cost.AsTinybar())
	assert.Empty(t, l.Payments())
}

func TestNftInfoCostIsClamped(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.DeleteNft(token, 1)

	q := query.NewNftInfoQuery().SetNftID(query.NftID{TokenID: token, SerialNumber: 1})

	cost, err := q.GetCost(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, query.MinimumNftInfoCost, cost)

	// the clamped cost is paid and the real status comes back
	_, err = q.Execute(context.Background(), c)
	assert.True(t, executable.IsPrecheck(err, ledger.StatusTokenWasDeleted), "got %v", err)

	payments := l.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, int64(25), payments[0].Amount)
}

func TestNftInfo(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetNftInfo, 100)

	info, err := query.NewNftInfoQuery().
		SetNftID(query.NftID{TokenID: token, SerialNumber: 7}).
		Execute(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, int64(7), info.NftID.SerialNumber)
	assert.Equal(t, []byte("metadata"), info.Metadata)
	assert.Equal(t, int64(100), l.Payments()[0].Amount)
}

func TestExecuteAsyncPaidQuery(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, 50)

	f := query.NewAccountInfoQuery().SetAccountID(bob).ExecuteAsync(context.Background(), c)

	info, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bob, info.AccountID)
	assert.Equal(t, 1, l.CostQueries())
	assert.Len(t, l.Payments(), 1)
}

func TestExecuteAsyncMaxQueryPayment(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetCost(proto.MethodGetAccountInfo, uint64(ledger.NewHbar(5).AsTinybar()))

	f := query.NewAccountInfoQuery().SetAccountID(bob).ExecuteAsync(context.Background(), c)

	_, err := f.Get(context.Background())
	assert.True(t, executable.IsMaxQueryPayment(err), "got %v", err)
	assert.Empty(t, l.Payments())
}

func TestExecuteAsyncFreeQuery(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, false)

	f := query.NewAccountBalanceQuery().SetAccountID(bob).ExecuteAsync(context.Background(), c)

	balance, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.Hbars.AsTinybar())
}

func submit(t *testing.T, c *client.Client) transaction.Response {
	tx := transaction.NewTransferTransaction()
	require.NoError(t, tx.AddHbarTransfer(alice, ledger.HbarFromTinybars(-10)))
	require.NoError(t, tx.AddHbarTransfer(bob, ledger.HbarFromTinybars(10)))

	resp, err := tx.Execute(context.Background(), c)
	require.NoError(t, err)
	return resp
}

func TestGetReceipt(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)

	resp := submit(t, c)

	receipt, err := query.GetReceipt(context.Background(), c, resp)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, receipt.Status)
	assert.Equal(t, resp.TransactionID.String(), receipt.TransactionID.String())
}

func TestGetReceiptWaitsForFinalStatus(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	l.SetPendingReceipts(2)

	resp := submit(t, c)

	receipt, err := query.GetReceipt(context.Background(), c, resp)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSuccess, receipt.Status)

	i := int(resp.NodeID.Num - 3)
	assert.Equal(t, 3, l.Calls(i, proto.MethodGetTransactionReceipt))
}

func TestGetReceiptErrorStatus(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)

	resp := submit(t, c)
	l.SetReceiptStatus(resp.TransactionID, ledger.StatusInsufficientPayerBalance)

	receipt, err := query.GetReceipt(context.Background(), c, resp)
	require.Error(t, err)

	var statusErr *query.ReceiptStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, ledger.StatusInsufficientPayerBalance, statusErr.Status)
	assert.Equal(t, ledger.StatusInsufficientPayerBalance, receipt.Status)
}

func TestReceiptNotFoundExhaustsAttempts(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l, true)
	require.NoError(t, c.SetMaxAttempts(3))

	q := query.NewTransactionReceiptQuery().SetTransactionID(ledger.NewTransactionID(alice))
	q.SetNodeAccountIDs([]ledger.AccountID{ledgertest.NodeID(0)})

	start := time.Now()
	_, err := q.Execute(context.Background(), c)
	assert.True(t, executable.IsMaxAttempts(err), "got %v", err)
	assert.True(t, executable.IsPrecheck(err, ledger.StatusReceiptNotFound), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 3, l.Calls(0, proto.MethodGetTransactionReceipt))
}

package proto

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecQuery(t *testing.T) {
	query := &Query{
		Header: QueryHeader{
			ResponseType: CostAnswer,
			Payment:      &Transaction{SignedTransactionBytes: []byte{1, 2, 3}},
		},
		AccountInfo: &AccountInfoQuery{AccountID: ledger.NewAccountID(1001)},
	}

	data, err := Marshal(query)
	require.NoError(t, err)

	var out Query
	require.NoError(t, Unmarshal(data, &out))

	assert.Equal(t, CostAnswer, out.Header.ResponseType)
	assert.Equal(t, []byte{1, 2, 3}, out.Header.Payment.SignedTransactionBytes)
	require.NotNil(t, out.AccountInfo)
	assert.Equal(t, ledger.NewAccountID(1001), out.AccountInfo.AccountID)
	assert.Nil(t, out.AccountBalance)
}

func TestCodecDeterministic(t *testing.T) {
	body := &TransactionBody{
		TransactionID: NewTransactionID(ledger.TransactionID{
			AccountID:  ledger.NewAccountID(2),
			ValidStart: time.Unix(1600000000, 5),
		}),
		NodeAccountID:  ledger.NewAccountID(3),
		TransactionFee: 100000000,
		Memo:           "memo",
		CryptoTransfer: &CryptoTransferBody{Transfers: TransferList{AccountAmounts: []AccountAmount{
			{AccountID: ledger.NewAccountID(2), Amount: -10},
			{AccountID: ledger.NewAccountID(3), Amount: 10},
		}}},
	}

	a, err := Marshal(body)
	require.NoError(t, err)
	b, err := Marshal(body)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var out TransactionBody
	require.NoError(t, Unmarshal(a, &out))
	assert.Equal(t, int64(1600000000), out.TransactionID.ValidStart.Seconds)
	assert.Equal(t, int32(5), out.TransactionID.ValidStart.Nanos)
	assert.Equal(t, body.TransactionID.Ledger().String(), out.TransactionID.Ledger().String())
}

func TestSplitMethod(t *testing.T) {
	service, method := SplitMethod(MethodGetAccountBalance)
	assert.Equal(t, CryptoService, service)
	assert.Equal(t, "cryptoGetBalance", method)

	service, method = SplitMethod("ping")
	assert.Equal(t, "", service)
	assert.Equal(t, "ping", method)
}

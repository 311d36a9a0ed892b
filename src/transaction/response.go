package transaction

import (
	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/crypto"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
)

// Response tells which node accepted a transaction. The outcome of the
// transaction itself is in its receipt.
type Response struct {
	NodeID        ledger.AccountID     `json:"node_id"`
	TransactionID ledger.TransactionID `json:"transaction_id"`
	Hash          []byte               `json:"hash"`
}

// HashHex ...
func (r Response) HashHex() string {
	return common.EncodeToString(r.Hash)
}

// Hash is the SHA384 hash of a signed transaction, as the ledger computes it.
func Hash(tx *proto.Transaction) []byte {
	return crypto.SHA384(tx.SignedTransactionBytes)
}

package proto

import (
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
)

// ResponseType selects between the cost probe and the real answer of a query.
type ResponseType int32

const (
	// AnswerOnly asks for the answer, with a payment attached.
	AnswerOnly ResponseType = 0
	// CostAnswer asks only for the cost of the query.
	CostAnswer ResponseType = 2
)

func (r ResponseType) String() string {
	switch r {
	case AnswerOnly:
		return "ANSWER_ONLY"
	case CostAnswer:
		return "COST_ANSWER"
	default:
		return "UNKNOWN"
	}
}

// Timestamp is a point in time split into seconds and nanoseconds.
type Timestamp struct {
	Seconds int64 `codec:"seconds"`
	Nanos   int32 `codec:"nanos"`
}

// NewTimestamp ...
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time ...
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// TransactionID ...
type TransactionID struct {
	AccountID  ledger.AccountID `codec:"account_id"`
	ValidStart Timestamp        `codec:"valid_start"`
}

// NewTransactionID ...
func NewTransactionID(id ledger.TransactionID) TransactionID {
	return TransactionID{AccountID: id.AccountID, ValidStart: NewTimestamp(id.ValidStart)}
}

// Ledger converts back to the ledger type.
func (t TransactionID) Ledger() ledger.TransactionID {
	return ledger.TransactionID{AccountID: t.AccountID, ValidStart: t.ValidStart.Time()}
}

/*******************************************************************************
Transactions
*******************************************************************************/

// AccountAmount is one leg of a transfer. Negative amounts are debits.
type AccountAmount struct {
	AccountID ledger.AccountID `codec:"account_id"`
	Amount    int64            `codec:"amount"`
}

// TransferList ...
type TransferList struct {
	AccountAmounts []AccountAmount `codec:"account_amounts"`
}

// CryptoTransferBody ...
type CryptoTransferBody struct {
	Transfers TransferList `codec:"transfers"`
}

// TransactionBody is the signed part of a transaction.
type TransactionBody struct {
	TransactionID            TransactionID       `codec:"transaction_id"`
	NodeAccountID            ledger.AccountID    `codec:"node_account_id"`
	TransactionFee           uint64              `codec:"transaction_fee"`
	TransactionValidDuration int64               `codec:"valid_duration_seconds"`
	Memo                     string              `codec:"memo"`
	CryptoTransfer           *CryptoTransferBody `codec:"crypto_transfer,omitempty"`
}

// SignaturePair ...
type SignaturePair struct {
	PubKeyPrefix   []byte `codec:"pub_key_prefix"`
	ECDSASecp256k1 []byte `codec:"ecdsa_secp256k1"`
}

// SignatureMap ...
type SignatureMap struct {
	SigPairs []SignaturePair `codec:"sig_pairs"`
}

// SignedTransaction binds the encoded body to its signatures.
type SignedTransaction struct {
	BodyBytes []byte       `codec:"body_bytes"`
	SigMap    SignatureMap `codec:"sig_map"`
}

// Transaction is what is submitted to a node, alone or as a query payment.
type Transaction struct {
	SignedTransactionBytes []byte `codec:"signed_transaction_bytes"`
}

// TransactionResponse is the precheck answer of a node to a submitted
// transaction.
type TransactionResponse struct {
	NodeTransactionPrecheckCode ledger.Status `codec:"precheck_code"`
	Cost                        uint64        `codec:"cost"`
}

/*******************************************************************************
Queries
*******************************************************************************/

// QueryHeader ...
type QueryHeader struct {
	Payment      *Transaction `codec:"payment,omitempty"`
	ResponseType ResponseType `codec:"response_type"`
}

// AccountBalanceQuery ...
type AccountBalanceQuery struct {
	AccountID ledger.AccountID `codec:"account_id"`
}

// AccountInfoQuery ...
type AccountInfoQuery struct {
	AccountID ledger.AccountID `codec:"account_id"`
}

// NftID ...
type NftID struct {
	TokenID      ledger.AccountID `codec:"token_id"`
	SerialNumber int64            `codec:"serial_number"`
}

// NftInfoQuery ...
type NftInfoQuery struct {
	NftID NftID `codec:"nft_id"`
}

// TransactionReceiptQuery ...
type TransactionReceiptQuery struct {
	TransactionID TransactionID `codec:"transaction_id"`
}

// Query carries a header and exactly one query body.
type Query struct {
	Header             QueryHeader              `codec:"header"`
	AccountBalance     *AccountBalanceQuery     `codec:"account_balance,omitempty"`
	AccountInfo        *AccountInfoQuery        `codec:"account_info,omitempty"`
	NftInfo            *NftInfoQuery            `codec:"nft_info,omitempty"`
	TransactionReceipt *TransactionReceiptQuery `codec:"transaction_receipt,omitempty"`
}

// ResponseHeader ...
type ResponseHeader struct {
	NodeTransactionPrecheckCode ledger.Status `codec:"precheck_code"`
	ResponseType                ResponseType  `codec:"response_type"`
	Cost                        uint64        `codec:"cost"`
}

// AccountBalanceResponse ...
type AccountBalanceResponse struct {
	AccountID ledger.AccountID `codec:"account_id"`
	Balance   uint64           `codec:"balance"`
}

// AccountInfoResponse ...
type AccountInfoResponse struct {
	AccountID ledger.AccountID `codec:"account_id"`
	Balance   uint64           `codec:"balance"`
	Deleted   bool             `codec:"deleted"`
	Memo      string           `codec:"memo"`
	Key       []byte           `codec:"key"`
}

// NftInfoResponse ...
type NftInfoResponse struct {
	NftID     NftID            `codec:"nft_id"`
	AccountID ledger.AccountID `codec:"account_id"`
	Metadata  []byte           `codec:"metadata"`
}

// TransactionReceipt ...
type TransactionReceipt struct {
	Status    ledger.Status     `codec:"status"`
	AccountID *ledger.AccountID `codec:"account_id,omitempty"`
}

// TransactionReceiptResponse ...
type TransactionReceiptResponse struct {
	Receipt TransactionReceipt `codec:"receipt"`
}

// Response carries a header and the body matching the query.
type Response struct {
	Header             ResponseHeader              `codec:"header"`
	AccountBalance     *AccountBalanceResponse     `codec:"account_balance,omitempty"`
	AccountInfo        *AccountInfoResponse        `codec:"account_info,omitempty"`
	NftInfo            *NftInfoResponse            `codec:"nft_info,omitempty"`
	TransactionReceipt *TransactionReceiptResponse `codec:"transaction_receipt,omitempty"`
}

/*******************************************************************************
Mirror
*******************************************************************************/

// ServiceEndpoint ...
type ServiceEndpoint struct {
	Address string `codec:"address"`
	Port    int32  `codec:"port"`
}

// NodeAddress is one entry of the address book served by mirror nodes.
type NodeAddress struct {
	NodeID           int64             `codec:"node_id"`
	NodeAccountID    ledger.AccountID  `codec:"node_account_id"`
	NodeCertHash     []byte            `codec:"node_cert_hash"`
	ServiceEndpoints []ServiceEndpoint `codec:"service_endpoints"`
	Description      string            `codec:"description"`
}

// AddressBookQuery ...
type AddressBookQuery struct {
	FileID ledger.AccountID `codec:"file_id"`
	Limit  int32            `codec:"limit"`
}

// TopicQuery subscribes to the messages of a topic. Topics use the same
// shard.realm.num form as accounts.
type TopicQuery struct {
	TopicID            ledger.AccountID `codec:"topic_id"`
	ConsensusStartTime *Timestamp       `codec:"consensus_start_time,omitempty"`
	Limit              uint64           `codec:"limit"`
}

// TopicMessage ...
type TopicMessage struct {
	ConsensusTimestamp Timestamp `codec:"consensus_timestamp"`
	Message            []byte    `codec:"message"`
	RunningHash        []byte    `codec:"running_hash"`
	SequenceNumber     uint64    `codec:"sequence_number"`
}

package ledger

import "fmt"

// Status is the response code a node returns inside a delivered response,
// either as a precheck result or as the final outcome in a receipt.
type Status int32

// Status codes, numbered as on the wire.
const (
	StatusOk                            Status = 0
	StatusInvalidTransaction            Status = 1
	StatusPayerAccountNotFound          Status = 2
	StatusInvalidNodeAccount            Status = 3
	StatusTransactionExpired            Status = 4
	StatusInvalidTransactionStart       Status = 5
	StatusInvalidTransactionDuration    Status = 6
	StatusInvalidSignature              Status = 7
	StatusInsufficientTxFee             Status = 9
	StatusInsufficientPayerBalance      Status = 10
	StatusDuplicateTransaction          Status = 11
	StatusBusy                          Status = 12
	StatusNotSupported                  Status = 13
	StatusInvalidAccountID              Status = 15
	StatusInvalidTransactionID          Status = 17
	StatusReceiptNotFound               Status = 18
	StatusRecordNotFound                Status = 19
	StatusUnknown                       Status = 21
	StatusSuccess                       Status = 22
	StatusFailInvalid                   Status = 23
	StatusInsufficientAccountBalance    Status = 28
	StatusInvalidReceivingNodeAccount   Status = 35
	StatusMissingQueryHeader            Status = 36
	StatusInvalidQueryHeader            Status = 41
	StatusInvalidAccountAmounts         Status = 48
	StatusPlatformNotActive             Status = 67
	StatusPlatformTransactionNotCreated Status = 69
	StatusAccountDeleted                Status = 72
	StatusTokenWasDeleted               Status = 136
	StatusInvalidNftID                  Status = 183
)

var statusNames = map[Status]string{
	StatusOk:                            "OK",
	StatusInvalidTransaction:            "INVALID_TRANSACTION",
	StatusPayerAccountNotFound:          "PAYER_ACCOUNT_NOT_FOUND",
	StatusInvalidNodeAccount:            "INVALID_NODE_ACCOUNT",
	StatusTransactionExpired:            "TRANSACTION_EXPIRED",
	StatusInvalidTransactionStart:       "INVALID_TRANSACTION_START",
	StatusInvalidTransactionDuration:    "INVALID_TRANSACTION_DURATION",
	StatusInvalidSignature:              "INVALID_SIGNATURE",
	StatusInsufficientTxFee:             "INSUFFICIENT_TX_FEE",
	StatusInsufficientPayerBalance:      "INSUFFICIENT_PAYER_BALANCE",
	StatusDuplicateTransaction:          "DUPLICATE_TRANSACTION",
	StatusBusy:                          "BUSY",
	StatusNotSupported:                  "NOT_SUPPORTED",
	StatusInvalidAccountID:              "INVALID_ACCOUNT_ID",
	StatusInvalidTransactionID:          "INVALID_TRANSACTION_ID",
	StatusReceiptNotFound:               "RECEIPT_NOT_FOUND",
	StatusRecordNotFound:                "RECORD_NOT_FOUND",
	StatusUnknown:                       "UNKNOWN",
	StatusSuccess:                       "SUCCESS",
	StatusFailInvalid:                   "FAIL_INVALID",
	StatusInsufficientAccountBalance:    "INSUFFICIENT_ACCOUNT_BALANCE",
	StatusInvalidReceivingNodeAccount:   "INVALID_RECEIVING_NODE_ACCOUNT",
	StatusMissingQueryHeader:            "MISSING_QUERY_HEADER",
	StatusInvalidQueryHeader:            "INVALID_QUERY_HEADER",
	StatusInvalidAccountAmounts:         "INVALID_ACCOUNT_AMOUNTS",
	StatusPlatformNotActive:             "PLATFORM_NOT_ACTIVE",
	StatusPlatformTransactionNotCreated: "PLATFORM_TRANSACTION_NOT_CREATED",
	StatusAccountDeleted:                "ACCOUNT_DELETED",
	StatusTokenWasDeleted:               "TOKEN_WAS_DELETED",
	StatusInvalidNftID:                  "INVALID_NFT_ID",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", int32(s))
}

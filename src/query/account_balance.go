package query

import (
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
)

// AccountBalance ...
type AccountBalance struct {
	AccountID ledger.AccountID `json:"account_id"`
	Hbars     ledger.Hbar      `json:"hbars"`
}

// AccountBalanceQuery gets the balance of an account. It is free.
type AccountBalanceQuery struct {
	Query[AccountBalance]
	accountID ledger.AccountID
}

// NewAccountBalanceQuery ...
func NewAccountBalanceQuery() *AccountBalanceQuery {
	q := &AccountBalanceQuery{}
	q.Query.init(q)
	return q
}

// SetAccountID ...
func (q *AccountBalanceQuery) SetAccountID(id ledger.AccountID) *AccountBalanceQuery {
	q.accountID = id
	return q
}

// AccountID ...
func (q *AccountBalanceQuery) AccountID() ledger.AccountID {
	return q.accountID
}

func (q *AccountBalanceQuery) name() string {
	return "AccountBalanceQuery"
}

func (q *AccountBalanceQuery) method() string {
	return proto.MethodGetAccountBalance
}

func (q *AccountBalanceQuery) paymentRequired() bool {
	return false
}

func (q *AccountBalanceQuery) validate() error {
	if q.accountID.IsZero() {
		return errors.New("account id is required")
	}
	return nil
}

func (q *AccountBalanceQuery) fill(pq *proto.Query, header proto.QueryHeader) {
	pq.Header = header
	pq.AccountBalance = &proto.AccountBalanceQuery{AccountID: q.accountID}
}

func (q *AccountBalanceQuery) decode(resp *proto.Response, nodeID ledger.AccountID) (AccountBalance, error) {
	if resp.AccountBalance == nil {
		return AccountBalance{}, errors.New("response has no account balance")
	}
	return AccountBalance{
		AccountID: resp.AccountBalance.AccountID,
		Hbars:     ledger.HbarFromTinybars(int64(resp.AccountBalance.Balance)),
	}, nil
}

func (q *AccountBalanceQuery) classify(st ledger.Status, resp *proto.Response) executable.ExecutionState {
	return defaultClassify(st, resp)
}

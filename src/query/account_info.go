package query

import (
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
)

// AccountInfo ...
type AccountInfo struct {
	AccountID ledger.AccountID `json:"account_id"`
	Balance   ledger.Hbar      `json:"balance"`
	Deleted   bool             `json:"deleted"`
	Memo      string           `json:"memo"`
	Key       []byte           `json:"key"`
}

// AccountInfoQuery gets the state of an account. It is paid.
type AccountInfoQuery struct {
	Query[AccountInfo]
	accountID ledger.AccountID
}

// NewAccountInfoQuery ...
func NewAccountInfoQuery() *AccountInfoQuery {
	q := &AccountInfoQuery{}
	q.Query.init(q)
	return q
}

// SetAccountID ...
func (q *AccountInfoQuery) SetAccountID(id ledger.AccountID) *AccountInfoQuery {
	q.accountID = id
	return q
}

func (q *AccountInfoQuery) name() string {
	return "AccountInfoQuery"
}

func (q *AccountInfoQuery) method() string {
	return proto.MethodGetAccountInfo
}

func (q *AccountInfoQuery) paymentRequired() bool {
	return true
}

func (q *AccountInfoQuery) validate() error {
	if q.accountID.IsZero() {
		return errors.New("account id is required")
	}
	return nil
}

func (q *AccountInfoQuery) fill(pq *proto.Query, header proto.QueryHeader) {
	pq.Header = header
	pq.AccountInfo = &proto.AccountInfoQuery{AccountID: q.accountID}
}

func (q *AccountInfoQuery) decode(resp *proto.Response, nodeID ledger.AccountID) (AccountInfo, error) {
	info := resp.AccountInfo
	if info == nil {
		return AccountInfo{}, errors.New("response has no account info")
	}
	return AccountInfo{
		AccountID: info.AccountID,
		Balance:   ledger.HbarFromTinybars(int64(info.Balance)),
		Deleted:   info.Deleted,
		Memo:      info.Memo,
		Key:       info.Key,
	}, nil
}

func (q *AccountInfoQuery) classify(st ledger.Status, resp *proto.Response) executable.ExecutionState {
	return defaultClassify(st, resp)
}

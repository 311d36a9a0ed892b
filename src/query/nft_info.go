package query

import (
	"fmt"

	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
)

// MinimumNftInfoCost is the floor applied to the cost of NftInfoQuery.
// Nodes report a zero cost for deleted tokens, and a zero payment would hide
// the real status behind a payment precheck failure.
var MinimumNftInfoCost = ledger.HbarFromTinybars(25)

// NftID identifies one serial number of a token.
type NftID struct {
	TokenID      ledger.AccountID `json:"token_id"`
	SerialNumber int64            `json:"serial_number"`
}

func (id NftID) String() string {
	return fmt.Sprintf("%d@%s", id.SerialNumber, id.TokenID)
}

// NftInfo ...
type NftInfo struct {
	NftID     NftID            `json:"nft_id"`
	AccountID ledger.AccountID `json:"account_id"`
	Metadata  []byte           `json:"metadata"`
}

// NftInfoQuery gets the owner and metadata of an NFT. It is paid.
type NftInfoQuery struct {
	Query[NftInfo]
	nftID NftID
}

// NewNftInfoQuery ...
func NewNftInfoQuery() *NftInfoQuery {
	q := &NftInfoQuery{}
	q.Query.init(q)
	return q
}

// SetNftID ...
func (q *NftInfoQuery) SetNftID(id NftID) *NftInfoQuery {
	q.nftID = id
	return q
}

func (q *NftInfoQuery) name() string {
	return "NftInfoQuery"
}

func (q *NftInfoQuery) method() string {
	return proto.MethodGetNftInfo
}

func (q *NftInfoQuery) paymentRequired() bool {
	return true
}

func (q *NftInfoQuery) minimumCost() ledger.Hbar {
	return MinimumNftInfoCost
}

func (q *NftInfoQuery) validate() error {
	if q.nftID.TokenID.IsZero() {
		return errors.New("token id is required")
	}
	if q.nftID.SerialNumber <= 0 {
		return errors.Errorf("invalid serial number %d", q.nftID.SerialNumber)
	}
	return nil
}

func (q *NftInfoQuery) fill(pq *proto.Query, header proto.QueryHeader) {
	pq.Header = header
	pq.NftInfo = &proto.NftInfoQuery{
		NftID: proto.NftID{TokenID: q.nftID.TokenID, SerialNumber: q.nftID.SerialNumber},
	}
}

func (q *NftInfoQuery) decode(resp *proto.Response, nodeID ledger.AccountID) (NftInfo, error) {
	info := resp.NftInfo
	if info == nil {
		return NftInfo{}, errors.New("response has no nft info")
	}
	return NftInfo{
		NftID:     NftID{TokenID: info.NftID.TokenID, SerialNumber: info.NftID.SerialNumber},
		AccountID: info.AccountID,
		Metadata:  info.Metadata,
	}, nil
}

func (q *NftInfoQuery) classify(st ledger.Status, resp *proto.Response) executable.ExecutionState {
	return defaultClassify(st, resp)
}

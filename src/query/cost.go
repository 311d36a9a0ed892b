package query

import (
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
)

// costQuery runs the body of a query with a COST_ANSWER header.
type costQuery[Out any] struct {
	query *Query[Out]
}

func (c *costQuery[Out]) Name() string {
	return c.query.Name() + " cost"
}

func (c *costQuery[Out]) Method() string {
	return c.query.Method()
}

func (c *costQuery[Out]) ValidateChecksums(cl executable.Client) error {
	return c.query.body.validate()
}

// BuildRequest attaches an empty payment. Nodes do not charge for the cost
// answer but reject a header without a payment.
func (c *costQuery[Out]) BuildRequest(nodeID ledger.AccountID) (*proto.Query, error) {
	payment, err := costPayment()
	if err != nil {
		return nil, err
	}

	req := &proto.Query{}
	c.query.body.fill(req, proto.QueryHeader{
		Payment:      payment,
		ResponseType: proto.CostAnswer,
	})
	return req, nil
}

// MapResponse reads the cost from the header and raises it to the minimum
// of the query, if it has one.
func (c *costQuery[Out]) MapResponse(resp *proto.Response, nodeID ledger.AccountID, req *proto.Query) (ledger.Hbar, error) {
	cost := ledger.HbarFromTinybars(int64(resp.Header.Cost))

	if m, ok := c.query.body.(minimumCost); ok {
		if floor := m.minimumCost(); cost.Cmp(floor) < 0 {
			cost = floor
		}
	}
	return cost, nil
}

func (c *costQuery[Out]) MapResponseStatus(resp *proto.Response) ledger.Status {
	return resp.Header.NodeTransactionPrecheckCode
}

func (c *costQuery[Out]) ClassifyExecutionState(st ledger.Status, resp *proto.Response) executable.ExecutionState {
	return executable.DefaultExecutionState(st)
}

func (c *costQuery[Out]) TransactionID() ledger.TransactionID {
	return ledger.TransactionID{}
}

// costPayment is an unsigned transfer with no legs from the zero account.
func costPayment() (*proto.Transaction, error) {
	body, err := proto.Marshal(&proto.TransactionBody{
		CryptoTransfer: &proto.CryptoTransferBody{},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding cost payment body")
	}

	signed, err := proto.Marshal(&proto.SignedTransaction{BodyBytes: body})
	if err != nil {
		return nil, errors.Wrap(err, "encoding cost payment")
	}

	return &proto.Transaction{SignedTransactionBytes: signed}, nil
}

package query

import (
	"context"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/mosaicnetworks/ledgerclient/src/transaction"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PaymentTransactionFee is the maximum fee of a query payment transfer.
var PaymentTransactionFee = ledger.NewHbar(1)

// body is what a concrete query contributes to the base.
type body[Out any] interface {
	name() string
	method() string
	paymentRequired() bool
	validate() error
	fill(q *proto.Query, header proto.QueryHeader)
	decode(resp *proto.Response, nodeID ledger.AccountID) (Out, error)
	classify(st ledger.Status, resp *proto.Response) executable.ExecutionState
}

// minimumCost is implemented by queries whose reported cost is raised to a
// floor before it is checked and paid.
type minimumCost interface {
	minimumCost() ledger.Hbar
}

// Query holds what every query has in common. Concrete queries embed it and
// pass themselves as its body.
type Query[Out any] struct {
	executable.Options

	mu sync.Mutex

	body            body[Out]
	queryPayment    *ledger.Hbar
	maxQueryPayment *ledger.Hbar

	paymentID ledger.TransactionID
	payments  map[ledger.AccountID]*proto.Transaction

	requestListener func(*proto.Query)
}

func (q *Query[Out]) init(b body[Out]) {
	q.body = b
}

// Name ...
func (q *Query[Out]) Name() string {
	return q.body.name()
}

// Method ...
func (q *Query[Out]) Method() string {
	return q.body.method()
}

// IsPaymentRequired ...
func (q *Query[Out]) IsPaymentRequired() bool {
	return q.body.paymentRequired()
}

// SetQueryPayment sets an explicit payment amount. The cost phase is skipped
// and the maximum query payment does not apply.
func (q *Query[Out]) SetQueryPayment(amount ledger.Hbar) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queryPayment = &amount
}

// SetMaxQueryPayment overrides the client default for this query.
func (q *Query[Out]) SetMaxQueryPayment(amount ledger.Hbar) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxQueryPayment = &amount
}

// SetRequestListener installs a function that sees every answer-only query
// right before it is sent.
func (q *Query[Out]) SetRequestListener(f func(*proto.Query)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requestListener = f
}

// PaymentTransactionID returns the id shared by the payments of the last
// execution, zero if none was built.
func (q *Query[Out]) PaymentTransactionID() ledger.TransactionID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paymentID
}

func (q *Query[Out]) hasPayments() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payments) > 0
}

func (q *Query[Out]) needsPayment() bool {
	return q.body.paymentRequired() && !q.hasPayments()
}

// maxPayment is the largest cost accepted without an explicit payment.
func (q *Query[Out]) maxPayment(c executable.Client) ledger.Hbar {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxQueryPayment != nil {
		return *q.maxQueryPayment
	}
	return c.MaxQueryPayment()
}

func (q *Query[Out]) explicitPayment() (ledger.Hbar, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queryPayment == nil {
		return ledger.ZeroHbar, false
	}
	return *q.queryPayment, true
}

// ensureNodes fixes the candidate nodes before the cost phase, so that both
// phases and the payments agree on them.
func (q *Query[Out]) ensureNodes(c executable.Client) error {
	if len(q.Options.NodeAccountIDs()) > 0 {
		return nil
	}
	ids := c.Network().NodeAccountIDsForExecute()
	if len(ids) == 0 {
		return executable.ErrNoNodes
	}
	q.Options.SetNodeAccountIDs(ids)
	return nil
}

func (q *Query[Out]) checkCost(c executable.Client, cost ledger.Hbar) error {
	limit := q.maxPayment(c)
	if cost.Cmp(limit) > 0 {
		return &executable.MaxQueryPaymentExceededError{Query: q.Name(), Cost: cost, Max: limit}
	}
	return nil
}

// preparePayments builds one payment of amount per candidate node, all
// under the same transaction id.
func (q *Query[Out]) preparePayments(c executable.Client, amount ledger.Hbar) error {
	op := c.Operator()
	if op == nil {
		return errors.Wrapf(executable.ErrNoOperator, "%s requires a payment", q.Name())
	}

	id := ledger.NewTransactionID(op.AccountID)
	ids := q.Options.NodeAccountIDs()

	payments := make(map[ledger.AccountID]*proto.Transaction, len(ids))
	for _, nodeID := range ids {
		tx, err := paymentTransaction(c, op, id, nodeID, amount)
		if err != nil {
			return errors.Wrapf(err, "building payment for node %s", nodeID)
		}
		payments[nodeID] = tx
	}

	q.mu.Lock()
	q.paymentID = id
	q.payments = payments
	q.mu.Unlock()

	c.Logger().WithFields(logrus.Fields{
		"query":   q.Name(),
		"payment": id.String(),
		"amount":  amount.String(),
		"nodes":   len(ids),
	}).Debug("Prepared query payments")

	return nil
}

// paymentTransaction moves amount from the operator to the node.
func paymentTransaction(c executable.Client, op *executable.Operator, id ledger.TransactionID, nodeID ledger.AccountID, amount ledger.Hbar) (*proto.Transaction, error) {
	tx := transaction.NewTransferTransaction()

	if err := tx.SetTransactionID(id); err != nil {
		return nil, err
	}
	if err := tx.SetNodeAccountIDs([]ledger.AccountID{nodeID}); err != nil {
		return nil, err
	}
	if err := tx.SetMaxTransactionFee(PaymentTransactionFee); err != nil {
		return nil, err
	}
	if err := tx.AddHbarTransfer(op.AccountID, amount.Negated()); err != nil {
		return nil, err
	}
	if err := tx.AddHbarTransfer(nodeID, amount); err != nil {
		return nil, err
	}
	if err := tx.Freeze(c); err != nil {
		return nil, err
	}
	if err := tx.SignWith(op.PublicKey(), op.Sign); err != nil {
		return nil, err
	}

	return tx.Signed(nodeID)
}

/*******************************************************************************
Request hooks of the answer phase
*******************************************************************************/

// ValidateChecksums ...
func (q *Query[Out]) ValidateChecksums(c executable.Client) error {
	return q.body.validate()
}

// BuildRequest attaches the payment for nodeID, if the query is paid.
func (q *Query[Out]) BuildRequest(nodeID ledger.AccountID) (*proto.Query, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	header := proto.QueryHeader{ResponseType: proto.AnswerOnly}

	if q.body.paymentRequired() {
		payment, ok := q.payments[nodeID]
		if !ok {
			return nil, errors.Wrapf(executable.ErrUnknownNode, "no payment for node %s", nodeID)
		}
		header.Payment = payment
	}

	req := &proto.Query{}
	q.body.fill(req, header)

	if q.requestListener != nil {
		q.requestListener(req)
	}
	return req, nil
}

// MapResponse ...
func (q *Query[Out]) MapResponse(resp *proto.Response, nodeID ledger.AccountID, req *proto.Query) (Out, error) {
	return q.body.decode(resp, nodeID)
}

// MapResponseStatus ...
func (q *Query[Out]) MapResponseStatus(resp *proto.Response) ledger.Status {
	return resp.Header.NodeTransactionPrecheckCode
}

// ClassifyExecutionState ...
func (q *Query[Out]) ClassifyExecutionState(st ledger.Status, resp *proto.Response) executable.ExecutionState {
	return q.body.classify(st, resp)
}

// TransactionID is the id of the payment, zero for free queries.
func (q *Query[Out]) TransactionID() ledger.TransactionID {
	return q.PaymentTransactionID()
}

/*******************************************************************************
Execution
*******************************************************************************/

func (q *Query[Out]) engine() *executable.Executable[proto.Query, proto.Response, Out] {
	return executable.New[proto.Query, proto.Response, Out](q, &q.Options)
}

func (q *Query[Out]) costEngine() *executable.Executable[proto.Query, proto.Response, ledger.Hbar] {
	opts := q.Options
	return executable.New[proto.Query, proto.Response, ledger.Hbar](&costQuery[Out]{query: q}, &opts)
}

// GetCost asks a node what the query costs. The returned cost already
// includes the minimum some queries apply.
func (q *Query[Out]) GetCost(ctx context.Context, c executable.Client) (ledger.Hbar, error) {
	if err := q.ensureNodes(c); err != nil {
		return ledger.ZeroHbar, err
	}
	return q.costEngine().Execute(ctx, c)
}

// Execute runs the query with the client's request timeout.
func (q *Query[Out]) Execute(ctx context.Context, c executable.Client) (Out, error) {
	return q.ExecuteWithTimeout(ctx, c, c.RequestTimeout())
}

// ExecuteWithTimeout runs the cost phase when needed, then the answer phase.
// Both share the timeout.
func (q *Query[Out]) ExecuteWithTimeout(ctx context.Context, c executable.Client, timeout time.Duration) (Out, error) {
	var zero Out

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if q.needsPayment() {
		if err := q.ensureNodes(c); err != nil {
			return zero, err
		}

		amount, ok := q.explicitPayment()
		if !ok {
			cost, err := q.costEngine().ExecuteWithTimeout(ctx, c, timeout)
			if err != nil {
				return zero, err
			}
			if err := q.checkCost(c, cost); err != nil {
				return zero, err
			}
			amount = cost
		}

		if err := q.preparePayments(c, amount); err != nil {
			return zero, err
		}
	}

	return q.engine().ExecuteWithTimeout(ctx, c, timeout)
}

// ExecuteAsync runs both phases without blocking the caller. Cancelling the
// returned future cancels whichever phase is running.
func (q *Query[Out]) ExecuteAsync(ctx context.Context, c executable.Client) *executable.Future[Out] {
	var zero Out

	ctx, cancel := context.WithTimeout(ctx, c.RequestTimeout())

	var f *executable.Future[Out]
	switch {
	case !q.needsPayment():
		f = q.engine().ExecuteAsync(ctx, c)
	default:
		if err := q.ensureNodes(c); err != nil {
			f = executable.Completed(zero, err)
			break
		}
		f = executable.Then(q.costAsync(ctx, c), func(amount ledger.Hbar) (*executable.Future[Out], error) {
			if err := q.preparePayments(c, amount); err != nil {
				return nil, err
			}
			return q.engine().ExecuteAsync(ctx, c), nil
		})
	}

	go func() {
		<-f.Done()
		cancel()
	}()

	return f
}

func (q *Query[Out]) costAsync(ctx context.Context, c executable.Client) *executable.Future[ledger.Hbar] {
	if amount, ok := q.explicitPayment(); ok {
		return executable.Completed(amount, nil)
	}
	return executable.Then(q.costEngine().ExecuteAsync(ctx, c), func(cost ledger.Hbar) (*executable.Future[ledger.Hbar], error) {
		if err := q.checkCost(c, cost); err != nil {
			return nil, err
		}
		return executable.Completed(cost, nil), nil
	})
}

// defaultClassify is the classification of queries without special cases.
func defaultClassify(st ledger.Status, resp *proto.Response) executable.ExecutionState {
	return executable.DefaultExecutionState(st)
}

package ledgertest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/config"
	"github.com/mosaicnetworks/ledgerclient/src/crypto/keys"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/net"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MirrorAddress is the address of the mirror node.
const MirrorAddress = "mirror:5600"

// NodeAddress returns the address of the i-th consensus node.
func NodeAddress(i int) string {
	return fmt.Sprintf("node%d:50211", i)
}

// NodeID returns the account of the i-th consensus node: 0.0.3, 0.0.4, ...
func NodeID(i int) ledger.AccountID {
	return ledger.NewAccountID(uint64(3 + i))
}

// Submission is a transaction accepted by a node.
type Submission struct {
	Node          ledger.AccountID
	TransactionID ledger.TransactionID
	Body          *proto.TransactionBody
	Signatures    int
}

// Payment is a query payment received by a node.
type Payment struct {
	Node          ledger.AccountID
	Method        string
	TransactionID ledger.TransactionID
	Payer         ledger.AccountID
	Amount        int64
	Fee           uint64
}

// Ledger is a fake network of consensus nodes and one mirror node.
type Ledger struct {
	Inmem *net.InmemNetwork

	nodes map[string]ledger.AccountID

	mu          sync.Mutex
	balances    map[ledger.AccountID]uint64
	costs       map[string]uint64
	prechecks   map[string][]ledger.Status
	receipts    map[string]ledger.Status
	pending     int
	polls       map[string]int
	deleted     map[proto.NftID]bool
	submissions []Submission
	payments    []Payment
	costQueries int
	addresses   []*proto.NodeAddress
	topics      map[ledger.AccountID][]*proto.TopicMessage
}

// New creates a ledger of n consensus nodes.
func New(n int) *Ledger {
	l := &Ledger{
		Inmem:     net.NewInmemNetwork(),
		nodes:     make(map[string]ledger.AccountID, n),
		balances:  make(map[ledger.AccountID]uint64),
		costs:     make(map[string]uint64),
		prechecks: make(map[string][]ledger.Status),
		receipts:  make(map[string]ledger.Status),
		polls:     make(map[string]int),
		deleted:   make(map[proto.NftID]bool),
		topics:    make(map[ledger.AccountID][]*proto.TopicMessage),
	}

	for i := 0; i < n; i++ {
		addr := NodeAddress(i)
		id := NodeID(i)
		l.nodes[addr] = id
		l.serve(addr, id)

		l.addresses = append(l.addresses, &proto.NodeAddress{
			NodeID:           int64(i),
			NodeAccountID:    id,
			ServiceEndpoints: []proto.ServiceEndpoint{{Address: fmt.Sprintf("node%d", i), Port: 50211}},
		})
	}

	l.serveMirror()

	return l
}

// Nodes returns the address -> account map of the consensus nodes.
func (l *Ledger) Nodes() map[string]ledger.AccountID {
	res := make(map[string]ledger.AccountID, len(l.nodes))
	for addr, id := range l.nodes {
		res[addr] = id
	}
	return res
}

// Config returns a test configuration over the ledger, with short backoffs
// and no operator.
func (l *Ledger) Config(t testing.TB) *config.Config {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.Dialer = l.Inmem.Dialer()
	conf.SetNodeNetwork(l.nodes)
	conf.MinBackoff = 5 * time.Millisecond
	conf.MaxBackoff = 50 * time.Millisecond
	conf.MinNodeBackoff = time.Second
	conf.MaxNodeBackoff = 10 * time.Second
	conf.RequestTimeout = 5 * time.Second
	conf.GRPCDeadline = time.Second
	conf.CloseTimeout = time.Second
	return conf
}

// NewOperator creates an account with a fresh key and a balance.
func (l *Ledger) NewOperator(t testing.TB, num uint64, balance uint64) (ledger.AccountID, *ecdsa.PrivateKey) {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	id := ledger.NewAccountID(num)
	l.SetBalance(id, balance)
	return id, key
}

// SetBalance ...
func (l *Ledger) SetBalance(id ledger.AccountID, tinybar uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[id] = tinybar
}

// SetCost sets the cost answered for a query method.
func (l *Ledger) SetCost(method string, tinybar uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.costs[method] = tinybar
}

// Script queues precheck statuses for a method. Every call to the method,
// on any node, consumes one before being served normally.
func (l *Ledger) Script(method string, statuses ...ledger.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prechecks[method] = append(l.prechecks[method], statuses...)
}

// SetPendingReceipts makes the receipt of every transaction non-final for
// the first n polls.
func (l *Ledger) SetPendingReceipts(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = n
}

// SetReceiptStatus overrides the final status of a transaction.
func (l *Ledger) SetReceiptStatus(id ledger.TransactionID, st ledger.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.receipts[id.String()] = st
}

// DeleteNft makes the NFT look deleted: its cost is reported as zero and
// the answer fails with TOKEN_WAS_DELETED.
func (l *Ledger) DeleteNft(tokenID ledger.AccountID, serial int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deleted[proto.NftID{TokenID: tokenID, SerialNumber: serial}] = true
}

// Down makes a node fail to connect, or recover with nil.
func (l *Ledger) Down(i int, err error) {
	l.Inmem.Channel(NodeAddress(i)).SetConnectError(err)
}

// Calls returns the calls of method received by node i.
func (l *Ledger) Calls(i int, method string) int {
	return l.Inmem.Channel(NodeAddress(i)).Calls(method)
}

// Submissions ...
func (l *Ledger) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}

// Payments ...
func (l *Ledger) Payments() []Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Payment(nil), l.payments...)
}

// CostQueries returns the number of cost answers served.
func (l *Ledger) CostQueries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.costQueries
}

// Publish adds a message to a topic. Messages are numbered from 1 and one
// second apart.
func (l *Ledger) Publish(topic ledger.AccountID, message []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.topics[topic]) + 1)
	l.topics[topic] = append(l.topics[topic], &proto.TopicMessage{
		ConsensusTimestamp: proto.Timestamp{Seconds: int64(1000 + seq)},
		Message:            message,
		SequenceNumber:     seq,
	})
}

// nextPrecheck consumes the next scripted status of method.
func (l *Ledger) nextPrecheck(method string) (ledger.Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	queue := l.prechecks[method]
	if len(queue) == 0 {
		return ledger.StatusOk, false
	}
	l.prechecks[method] = queue[1:]
	return queue[0], true
}

/*******************************************************************************
Consensus nodes
*******************************************************************************/

func (l *Ledger) serve(addr string, id ledger.AccountID) {
	ch := l.Inmem.Channel(addr)

	ch.Handle(proto.MethodCryptoTransfer, net.InmemUnary(func(ctx context.Context, tx *proto.Transaction) (*proto.TransactionResponse, error) {
		return l.submit(id, tx), nil
	}))

	for _, method := range []string{
		proto.MethodGetAccountBalance,
		proto.MethodGetAccountInfo,
		proto.MethodGetNftInfo,
		proto.MethodGetTransactionReceipt,
	} {
		ch.Handle(method, net.InmemUnary(func(ctx context.Context, q *proto.Query) (*proto.Response, error) {
			return l.query(id, method, q)
		}))
	}
}

func (l *Ledger) submit(nodeID ledger.AccountID, tx *proto.Transaction) *proto.TransactionResponse {
	if st, ok := l.nextPrecheck(proto.MethodCryptoTransfer); ok {
		return &proto.TransactionResponse{NodeTransactionPrecheckCode: st}
	}

	body, signed, err := DecodeTransaction(tx)
	if err != nil {
		return &proto.TransactionResponse{NodeTransactionPrecheckCode: ledger.StatusInvalidTransaction}
	}
	if body.NodeAccountID != nodeID {
		return &proto.TransactionResponse{NodeTransactionPrecheckCode: ledger.StatusInvalidNodeAccount}
	}
	if !verify(signed) {
		return &proto.TransactionResponse{NodeTransactionPrecheckCode: ledger.StatusInvalidSignature}
	}

	id := body.TransactionID.Ledger()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.receipts[id.String()]; ok {
		return &proto.TransactionResponse{NodeTransactionPrecheckCode: ledger.StatusDuplicateTransaction}
	}
	l.receipts[id.String()] = ledger.StatusSuccess
	l.submissions = append(l.submissions, Submission{
		Node:          nodeID,
		TransactionID: id,
		Body:          body,
		Signatures:    len(signed.SigMap.SigPairs),
	})

	return &proto.TransactionResponse{NodeTransactionPrecheckCode: ledger.StatusOk}
}

func (l *Ledger) query(nodeID ledger.AccountID, method string, q *proto.Query) (*proto.Response, error) {
	if q.Header.ResponseType == proto.CostAnswer {
		return l.cost(method, q), nil
	}

	if st, ok := l.nextPrecheck(method); ok {
		return &proto.Response{Header: proto.ResponseHeader{NodeTransactionPrecheckCode: st}}, nil
	}

	if st := l.pay(nodeID, method, q); st != ledger.StatusOk {
		return &proto.Response{Header: proto.ResponseHeader{NodeTransactionPrecheckCode: st}}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	resp := &proto.Response{}

	switch {
	case q.AccountBalance != nil:
		id := q.AccountBalance.AccountID
		balance, ok := l.balances[id]
		if !ok && !l.isNode(id) {
			resp.Header.NodeTransactionPrecheckCode = ledger.StatusInvalidAccountID
			break
		}
		resp.AccountBalance = &proto.AccountBalanceResponse{AccountID: id, Balance: balance}

	case q.AccountInfo != nil:
		id := q.AccountInfo.AccountID
		balance, ok := l.balances[id]
		if !ok {
			resp.Header.NodeTransactionPrecheckCode = ledger.StatusInvalidAccountID
			break
		}
		resp.AccountInfo = &proto.AccountInfoResponse{AccountID: id, Balance: balance}

	case q.NftInfo != nil:
		if l.deleted[q.NftInfo.NftID] {
			resp.Header.NodeTransactionPrecheckCode = ledger.StatusTokenWasDeleted
			break
		}
		resp.NftInfo = &proto.NftInfoResponse{
			NftID:     q.NftInfo.NftID,
			AccountID: ledger.NewAccountID(1001),
			Metadata:  []byte("metadata"),
		}

	case q.TransactionReceipt != nil:
		id := q.TransactionReceipt.TransactionID.Ledger().String()
		st, ok := l.receipts[id]
		if !ok {
			resp.Header.NodeTransactionPrecheckCode = ledger.StatusReceiptNotFound
			break
		}
		l.polls[id]++
		if l.polls[id] <= l.pending {
			st = ledger.StatusUnknown
		}
		resp.TransactionReceipt = &proto.TransactionReceiptResponse{
			Receipt: proto.TransactionReceipt{Status: st},
		}

	default:
		return nil, status.Error(codes.InvalidArgument, "empty query")
	}

	return resp, nil
}

func (l *Ledger) isNode(id ledger.AccountID) bool {
	for _, n := range l.nodes {
		if n == id {
			return true
		}
	}
	return false
}

func (l *Ledger) cost(method string, q *proto.Query) *proto.Response {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.costQueries++

	cost := l.costs[method]
	if q.NftInfo != nil && l.deleted[q.NftInfo.NftID] {
		cost = 0
	}

	return &proto.Response{
		Header: proto.ResponseHeader{
			NodeTransactionPrecheckCode: ledger.StatusOk,
			ResponseType:                proto.CostAnswer,
			Cost:                        cost,
		},
	}
}

// pay checks the payment of a paid query. Free queries need none.
func (l *Ledger) pay(nodeID ledger.AccountID, method string, q *proto.Query) ledger.Status {
	if method == proto.MethodGetAccountBalance || method == proto.MethodGetTransactionReceipt {
		return ledger.StatusOk
	}
	if q.Header.Payment == nil {
		return ledger.StatusInvalidTransaction
	}

	body, signed, err := DecodeTransaction(q.Header.Payment)
	if err != nil || body.CryptoTransfer == nil {
		return ledger.StatusInvalidTransaction
	}
	if body.NodeAccountID != nodeID {
		return ledger.StatusInvalidNodeAccount
	}
	if !verify(signed) {
		return ledger.StatusInvalidSignature
	}

	var amount int64
	payer := body.TransactionID.AccountID
	for _, aa := range body.CryptoTransfer.Transfers.AccountAmounts {
		if aa.AccountID == nodeID {
			amount = aa.Amount
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount < int64(l.costs[method]) {
		return ledger.StatusInsufficientTxFee
	}

	l.payments = append(l.payments, Payment{
		Node:          nodeID,
		Method:        method,
		TransactionID: body.TransactionID.Ledger(),
		Payer:         payer,
		Amount:        amount,
		Fee:           body.TransactionFee,
	})

	return ledger.StatusOk
}

/*******************************************************************************
Mirror node
*******************************************************************************/

func (l *Ledger) serveMirror() {
	ch := l.Inmem.Channel(MirrorAddress)

	ch.HandleStream(proto.MethodGetNodes, net.InmemServerStream(func(ctx context.Context, q *proto.AddressBookQuery, send func(*proto.NodeAddress) error) error {
		l.mu.Lock()
		entries := append([]*proto.NodeAddress(nil), l.addresses...)
		l.mu.Unlock()

		for i, e := range entries {
			if q.Limit > 0 && int32(i) >= q.Limit {
				break
			}
			if err := send(e); err != nil {
				return err
			}
		}
		return nil
	}))

	ch.HandleStream(proto.MethodSubscribeTopic, net.InmemServerStream(func(ctx context.Context, q *proto.TopicQuery, send func(*proto.TopicMessage) error) error {
		l.mu.Lock()
		messages := append([]*proto.TopicMessage(nil), l.topics[q.TopicID]...)
		l.mu.Unlock()

		if len(messages) == 0 {
			return status.Errorf(codes.NotFound, "topic %s not found", q.TopicID)
		}

		sent := uint64(0)
		for _, m := range messages {
			if q.ConsensusStartTime != nil && m.ConsensusTimestamp.Time().Before(q.ConsensusStartTime.Time()) {
				continue
			}
			if q.Limit > 0 && sent >= q.Limit {
				return nil
			}
			if err := send(m); err != nil {
				return err
			}
			sent++
		}

		if q.Limit > 0 && sent >= q.Limit {
			return nil
		}

		<-ctx.Done()
		return status.FromContextError(ctx.Err()).Err()
	}))
}

// SetAddressBook replaces the entries served by the mirror node.
func (l *Ledger) SetAddressBook(entries []*proto.NodeAddress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addresses = entries
}

/*******************************************************************************
Decoding
*******************************************************************************/

// DecodeTransaction opens a wire transaction.
func DecodeTransaction(tx *proto.Transaction) (*proto.TransactionBody, *proto.SignedTransaction, error) {
	signed := new(proto.SignedTransaction)
	if err := proto.Unmarshal(tx.SignedTransactionBytes, signed); err != nil {
		return nil, nil, errors.Wrap(err, "decoding signed transaction")
	}

	body := new(proto.TransactionBody)
	if err := proto.Unmarshal(signed.BodyBytes, body); err != nil {
		return nil, nil, errors.Wrap(err, "decoding transaction body")
	}

	return body, signed, nil
}

// Transfers returns the transfer legs of a body by account.
func Transfers(body *proto.TransactionBody) map[ledger.AccountID]int64 {
	res := make(map[ledger.AccountID]int64)
	if body.CryptoTransfer == nil {
		return res
	}
	for _, aa := range body.CryptoTransfer.Transfers.AccountAmounts {
		res[aa.AccountID] += aa.Amount
	}
	return res
}

// verify checks that there is at least one signature and that all of them
// are valid.
func verify(signed *proto.SignedTransaction) bool {
	if len(signed.SigMap.SigPairs) == 0 {
		return false
	}
	for _, pair := range signed.SigMap.SigPairs {
		pub := keys.ToPublicKey(pair.PubKeyPrefix)
		if pub == nil {
			return false
		}
		ok, err := keys.Verify(pub, signed.BodyBytes, pair.ECDSASecp256k1)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// SortedSubmissionNodes returns the nodes of the submissions, sorted.
func SortedSubmissionNodes(subs []Submission) []ledger.AccountID {
	res := make([]ledger.AccountID, 0, len(subs))
	for _, s := range subs {
		res = append(res, s.Node)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Compare(res[j]) < 0 })
	return res
}

package transaction

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/crypto/keys"
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
)

// Defaults applied at Freeze.
const (
	DefaultValidDuration = 120 * time.Second
)

// DefaultMaxTransactionFee ...
var DefaultMaxTransactionFee = ledger.NewHbar(1)

var (
	// ErrFrozen is returned when a frozen transaction is modified.
	ErrFrozen = errors.New("transaction is immutable; it has at least one signature or has been explicitly frozen")
	// ErrNotFrozen is returned when a transaction must be frozen first.
	ErrNotFrozen = errors.New("transaction must be frozen")
)

// Body is what a concrete transaction contributes: its name, its RPC method
// and its part of the transaction body.
type Body interface {
	Name() string
	Method() string
	FillBody(body *proto.TransactionBody) error
	Validate() error
}

type signer struct {
	publicKey []byte
	sign      func([]byte) ([]byte, error)
}

// Transaction holds what every transaction has in common. Concrete
// transactions embed it and pass themselves as its Body.
type Transaction struct {
	executable.Options

	mu sync.Mutex

	body              Body
	transactionID     ledger.TransactionID
	explicitID        bool
	regenerate        common.Trilean
	maxTransactionFee ledger.Hbar
	validDuration     time.Duration
	memo              string

	frozen   bool
	bodies   map[ledger.AccountID][]byte
	sigPairs map[ledger.AccountID][]proto.SignaturePair
	signers  []signer

	requestListener func(*proto.Transaction)
}

// init must be called by the constructor of the concrete transaction.
func (t *Transaction) init(body Body) {
	t.body = body
	t.maxTransactionFee = DefaultMaxTransactionFee
	t.validDuration = DefaultValidDuration
}

// Name ...
func (t *Transaction) Name() string {
	return t.body.Name()
}

// Method ...
func (t *Transaction) Method() string {
	return t.body.Method()
}

// IsFrozen ...
func (t *Transaction) IsFrozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

func (t *Transaction) requireNotFrozen() error {
	if t.frozen {
		return ErrFrozen
	}
	return nil
}

// SetNodeAccountIDs fixes the nodes the transaction may be sent to.
func (t *Transaction) SetNodeAccountIDs(ids []ledger.AccountID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireNotFrozen(); err != nil {
		return err
	}
	t.Options.SetNodeAccountIDs(ids)
	return nil
}

// SetTransactionID sets an explicit id. An explicit id is never regenerated
// unless regeneration is explicitly enabled.
func (t *Transaction) SetTransactionID(id ledger.TransactionID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireNotFrozen(); err != nil {
		return err
	}
	t.transactionID = id
	t.explicitID = true
	return nil
}

// TransactionID returns the id, zero before Freeze unless set explicitly.
func (t *Transaction) TransactionID() ledger.TransactionID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transactionID
}

// SetRegenerateTransactionID controls whether an expired transaction gets a
// new id and is sent again.
func (t *Transaction) SetRegenerateTransactionID(regenerate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.regenerate = common.TrileanOf(regenerate)
}

// SetMaxTransactionFee ...
func (t *Transaction) SetMaxTransactionFee(fee ledger.Hbar) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireNotFrozen(); err != nil {
		return err
	}
	t.maxTransactionFee = fee
	return nil
}

// SetTransactionValidDuration ...
func (t *Transaction) SetTransactionValidDuration(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireNotFrozen(); err != nil {
		return err
	}
	t.validDuration = d
	return nil
}

// SetTransactionMemo ...
func (t *Transaction) SetTransactionMemo(memo string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.requireNotFrozen(); err != nil {
		return err
	}
	t.memo = memo
	return nil
}

// SetRequestListener installs a function that sees every signed transaction
// right before it is sent.
func (t *Transaction) SetRequestListener(f func(*proto.Transaction)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestListener = f
}

// Freeze fixes the transaction id and the nodes, and serializes one body per
// node. Without an explicit id, the client operator pays for the
// transaction.
func (t *Transaction) Freeze(c executable.Client) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return nil
	}

	if err := t.body.Validate(); err != nil {
		return errors.Wrapf(err, "invalid %s", t.body.Name())
	}

	if t.transactionID.IsZero() {
		op := c.Operator()
		if op == nil {
			return executable.ErrNoOperator
		}
		t.transactionID = ledger.NewTransactionID(op.AccountID)
	}

	if len(t.Options.NodeAccountIDs()) == 0 {
		ids := c.Network().NodeAccountIDsForExecute()
		if len(ids) == 0 {
			return executable.ErrNoNodes
		}
		t.Options.SetNodeAccountIDs(ids)
	}

	if err := t.buildBodies(); err != nil {
		return err
	}

	t.frozen = true
	return nil
}

func (t *Transaction) buildBodies() error {
	bodies := make(map[ledger.AccountID][]byte)

	for _, nodeID := range t.Options.NodeAccountIDs() {
		body := &proto.TransactionBody{
			TransactionID:            proto.NewTransactionID(t.transactionID),
			NodeAccountID:            nodeID,
			TransactionFee:           uint64(t.maxTransactionFee.AsTinybar()),
			TransactionValidDuration: int64(t.validDuration / time.Second),
			Memo:                     t.memo,
		}
		if err := t.body.FillBody(body); err != nil {
			return err
		}

		bytes, err := proto.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding transaction body")
		}
		bodies[nodeID] = bytes
	}

	t.bodies = bodies
	t.sigPairs = make(map[ledger.AccountID][]proto.SignaturePair)
	return nil
}

// Sign adds a signature by priv to every per-node body.
func (t *Transaction) Sign(priv *ecdsa.PrivateKey) error {
	return t.SignWith(keys.FromPublicKey(&priv.PublicKey), func(data []byte) ([]byte, error) {
		return keys.Sign(priv, data)
	})
}

// SignWith adds a signature by an external signer. Signing twice with the
// same public key has no effect.
func (t *Transaction) SignWith(publicKey []byte, sign func([]byte) ([]byte, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.frozen {
		return ErrNotFrozen
	}

	for _, s := range t.signers {
		if string(s.publicKey) == string(publicKey) {
			return nil
		}
	}

	s := signer{publicKey: publicKey, sign: sign}
	if err := t.applySigner(s); err != nil {
		return err
	}
	t.signers = append(t.signers, s)
	return nil
}

// SignWithOperator freezes the transaction if needed and signs it with the
// client operator.
func (t *Transaction) SignWithOperator(c executable.Client) error {
	op := c.Operator()
	if op == nil {
		return executable.ErrNoOperator
	}
	if err := t.Freeze(c); err != nil {
		return err
	}
	return t.SignWith(op.PublicKey(), op.Sign)
}

func (t *Transaction) applySigner(s signer) error {
	for nodeID, body := range t.bodies {
		sig, err := s.sign(body)
		if err != nil {
			return errors.Wrapf(err, "signing transaction for node %s", nodeID)
		}
		t.sigPairs[nodeID] = append(t.sigPairs[nodeID], proto.SignaturePair{
			PubKeyPrefix:   s.publicKey,
			ECDSASecp256k1: sig,
		})
	}
	return nil
}

// SignatureCount ...
func (t *Transaction) SignatureCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.signers)
}

// regenerateID gives the transaction a new id and signs it again with every
// signer.
func (t *Transaction) regenerateID() error {
	t.transactionID = ledger.NewTransactionID(t.transactionID.AccountID)

	if err := t.buildBodies(); err != nil {
		return err
	}
	for _, s := range t.signers {
		if err := t.applySigner(s); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transaction) shouldRegenerate() bool {
	return t.regenerate.Or(!t.explicitID)
}

// Signed returns the wire transaction for a node.
func (t *Transaction) Signed(nodeID ledger.AccountID) (*proto.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signed(nodeID)
}

func (t *Transaction) signed(nodeID ledger.AccountID) (*proto.Transaction, error) {
	if !t.frozen {
		return nil, ErrNotFrozen
	}

	body, ok := t.bodies[nodeID]
	if !ok {
		return nil, errors.Wrapf(executable.ErrUnknownNode, "transaction has no body for node %s", nodeID)
	}

	bytes, err := proto.Marshal(&proto.SignedTransaction{
		BodyBytes: body,
		SigMap:    proto.SignatureMap{SigPairs: t.sigPairs[nodeID]},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding signed transaction")
	}

	return &proto.Transaction{SignedTransactionBytes: bytes}, nil
}

/*******************************************************************************
Request hooks
*******************************************************************************/

// ValidateChecksums ...
func (t *Transaction) ValidateChecksums(c executable.Client) error {
	return t.body.Validate()
}

// BuildRequest ...
func (t *Transaction) BuildRequest(nodeID ledger.AccountID) (*proto.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tx, err := t.signed(nodeID)
	if err != nil {
		return nil, err
	}
	if t.requestListener != nil {
		t.requestListener(tx)
	}
	return tx, nil
}

// MapResponse ...
func (t *Transaction) MapResponse(resp *proto.TransactionResponse, nodeID ledger.AccountID, req *proto.Transaction) (Response, error) {
	return Response{
		NodeID:        nodeID,
		TransactionID: t.TransactionID(),
		Hash:          Hash(req),
	}, nil
}

// MapResponseStatus ...
func (t *Transaction) MapResponseStatus(resp *proto.TransactionResponse) ledger.Status {
	return resp.NodeTransactionPrecheckCode
}

// ClassifyExecutionState retries an expired transaction under a new id when
// regeneration applies.
func (t *Transaction) ClassifyExecutionState(st ledger.Status, resp *proto.TransactionResponse) executable.ExecutionState {
	if st == ledger.StatusTransactionExpired {
		t.mu.Lock()
		defer t.mu.Unlock()

		if t.shouldRegenerate() {
			if err := t.regenerateID(); err == nil {
				return executable.Retry
			}
		}
		return executable.RequestError
	}

	return executable.DefaultExecutionState(st)
}

/*******************************************************************************
Execution
*******************************************************************************/

// prepare freezes the transaction and adds the operator signature.
func (t *Transaction) prepare(c executable.Client) error {
	if err := t.Freeze(c); err != nil {
		return err
	}
	if c.Operator() != nil {
		return t.SignWithOperator(c)
	}
	if t.SignatureCount() == 0 {
		return errors.Wrap(executable.ErrNoOperator, "transaction has no signature")
	}
	return nil
}

func (t *Transaction) engine() *executable.Executable[proto.Transaction, proto.TransactionResponse, Response] {
	return executable.New[proto.Transaction, proto.TransactionResponse, Response](t, &t.Options)
}

// Execute submits the transaction, failing over between its nodes, and
// returns once a node accepted it.
func (t *Transaction) Execute(ctx context.Context, c executable.Client) (Response, error) {
	if err := t.prepare(c); err != nil {
		return Response{}, err
	}
	return t.engine().Execute(ctx, c)
}

// ExecuteWithTimeout ...
func (t *Transaction) ExecuteWithTimeout(ctx context.Context, c executable.Client, timeout time.Duration) (Response, error) {
	if err := t.prepare(c); err != nil {
		return Response{}, err
	}
	return t.engine().ExecuteWithTimeout(ctx, c, timeout)
}

// ExecuteAsync ...
func (t *Transaction) ExecuteAsync(ctx context.Context, c executable.Client) (*executable.Future[Response], error) {
	if err := t.prepare(c); err != nil {
		return nil, err
	}
	return t.engine().ExecuteAsync(ctx, c), nil
}

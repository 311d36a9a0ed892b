package executable

import (
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/pkg/errors"
)

// ExecutionState is how a request type classifies a delivered response.
type ExecutionState int

const (
	// Success ends the execution with the mapped response.
	Success ExecutionState = iota
	// Retry tries the same node again after a delay.
	Retry
	// ServerError moves on to the next node.
	ServerError
	// RequestError ends the execution with a PrecheckStatusError.
	RequestError
)

var executionStates = []string{"Success", "Retry", "ServerError", "RequestError"}

// String ...
func (s ExecutionState) String() string {
	if int(s) < len(executionStates) {
		return executionStates[s]
	}
	return "Unknown"
}

// DefaultExecutionState is the classification used by requests that do not
// need special cases.
func DefaultExecutionState(st ledger.Status) ExecutionState {
	switch st {
	case ledger.StatusPlatformTransactionNotCreated, ledger.StatusPlatformNotActive:
		return ServerError
	case ledger.StatusBusy, ledger.StatusInvalidNodeAccount:
		return Retry
	case ledger.StatusOk:
		return Success
	default:
		return RequestError
	}
}

// Request is the set of hooks a concrete transaction or query gives the
// engine. Req and Resp are the wire messages, Out is what the caller gets.
type Request[Req any, Resp any, Out any] interface {
	// Name identifies the request kind in logs and errors.
	Name() string

	// Method is the full RPC method path.
	Method() string

	// ValidateChecksums runs once before the first attempt.
	ValidateChecksums(c Client) error

	// BuildRequest materializes the wire request for a node. It must not do
	// any I/O and must return the same request for the same node.
	BuildRequest(nodeID ledger.AccountID) (*Req, error)

	MapResponse(resp *Resp, nodeID ledger.AccountID, req *Req) (Out, error)

	MapResponseStatus(resp *Resp) ledger.Status

	ClassifyExecutionState(st ledger.Status, resp *Resp) ExecutionState

	// TransactionID is reported in precheck errors. It may be zero.
	TransactionID() ledger.TransactionID
}

// Options hold the per-request overrides of the client defaults. The zero
// value uses the client defaults for everything.
type Options struct {
	nodeAccountIDs []ledger.AccountID
	maxAttempts    int
	minBackoff     *time.Duration
	maxBackoff     *time.Duration
	grpcDeadline   time.Duration
}

// SetNodeAccountIDs restricts the request to the given nodes, in order.
func (o *Options) SetNodeAccountIDs(ids []ledger.AccountID) {
	o.nodeAccountIDs = append([]ledger.AccountID(nil), ids...)
}

// NodeAccountIDs ...
func (o *Options) NodeAccountIDs() []ledger.AccountID {
	if o == nil {
		return nil
	}
	return o.nodeAccountIDs
}

// SetMaxAttempts ...
func (o *Options) SetMaxAttempts(n int) error {
	if n < 1 {
		return errors.Errorf("max attempts must be at least 1, got %d", n)
	}
	o.maxAttempts = n
	return nil
}

// MaxAttempts returns the override, 0 when unset.
func (o *Options) MaxAttempts() int {
	if o == nil {
		return 0
	}
	return o.maxAttempts
}

// SetMinBackoff sets the first retry delay. It may not exceed the max backoff
// if one is set.
func (o *Options) SetMinBackoff(d time.Duration) error {
	if d < 0 {
		return errors.New("min backoff must not be negative")
	}
	if o.maxBackoff != nil && d > *o.maxBackoff {
		return errors.Errorf("min backoff %s is greater than max backoff %s", d, *o.maxBackoff)
	}
	o.minBackoff = &d
	return nil
}

// SetMaxBackoff sets the ceiling of the retry delay. It may not be lower than
// the min backoff if one is set.
func (o *Options) SetMaxBackoff(d time.Duration) error {
	if d < 0 {
		return errors.New("max backoff must not be negative")
	}
	if o.minBackoff != nil && d < *o.minBackoff {
		return errors.Errorf("max backoff %s is lower than min backoff %s", d, *o.minBackoff)
	}
	o.maxBackoff = &d
	return nil
}

// SetGRPCDeadline bounds every single call. It never extends the overall
// deadline.
func (o *Options) SetGRPCDeadline(d time.Duration) {
	o.grpcDeadline = d
}

// budget resolves the options against the client defaults.
func (o *Options) budget(c Client, start time.Time, timeout time.Duration) budget {
	b := budget{
		maxAttempts:  c.MaxAttempts(),
		minBackoff:   c.MinBackoff(),
		maxBackoff:   c.MaxBackoff(),
		grpcDeadline: c.GRPCDeadline(),
		deadline:     start.Add(timeout),
	}

	if o == nil {
		return b
	}
	if o.maxAttempts > 0 {
		b.maxAttempts = o.maxAttempts
	}
	if o.minBackoff != nil {
		b.minBackoff = *o.minBackoff
	}
	if o.maxBackoff != nil {
		b.maxBackoff = *o.maxBackoff
	}
	if b.maxBackoff < b.minBackoff {
		b.maxBackoff = b.minBackoff
	}
	if o.grpcDeadline > 0 {
		b.grpcDeadline = o.grpcDeadline
	}
	if b.maxAttempts < 1 {
		b.maxAttempts = 1
	}
	return b
}

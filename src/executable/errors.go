package executable

import (
	"fmt"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/pkg/errors"
	"google.golang.org/grpc/status"
)

var (
	// ErrNoNodes is returned when a request has no node to be sent to.
	ErrNoNodes = errors.New("no nodes available for execution")
	// ErrUnknownNode is returned when a requested node is not in the network.
	ErrUnknownNode = errors.New("node account id not in the network")
	// ErrNoOperator is returned when an operation needs the operator identity
	// and the client has none.
	ErrNoOperator = errors.New("client has no operator")
)

// PrecheckStatusError is returned when a node rejects a request with a
// domain status that means the request itself is invalid, or as the last
// error of an exhausted execution.
type PrecheckStatusError struct {
	Status        ledger.Status
	TransactionID ledger.TransactionID
}

// Error ...
func (e *PrecheckStatusError) Error() string {
	if e.TransactionID.IsZero() {
		return fmt.Sprintf("precheck failed with status %s", e.Status)
	}
	return fmt.Sprintf("precheck failed with status %s for transaction %s", e.Status, e.TransactionID)
}

// MaxAttemptsExceededError is returned when the attempt budget is spent.
// LastErr is the last outcome observed.
type MaxAttemptsExceededError struct {
	Attempts int
	LastErr  error
}

// Error ...
func (e *MaxAttemptsExceededError) Error() string {
	return fmt.Sprintf("exceeded maximum attempts (%d) for request: %v", e.Attempts, e.LastErr)
}

// Unwrap ...
func (e *MaxAttemptsExceededError) Unwrap() error {
	return e.LastErr
}

// TimeoutError is returned when the overall deadline passes before a
// terminal outcome.
type TimeoutError struct {
	LastErr error
}

// Error ...
func (e *TimeoutError) Error() string {
	if e.LastErr == nil {
		return "request timed out"
	}
	return fmt.Sprintf("request timed out: %v", e.LastErr)
}

// Unwrap ...
func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// MaxQueryPaymentExceededError is returned when a query costs more than the
// caller is willing to pay.
type MaxQueryPaymentExceededError struct {
	Query string
	Cost  ledger.Hbar
	Max   ledger.Hbar
}

// Error ...
func (e *MaxQueryPaymentExceededError) Error() string {
	return fmt.Sprintf("cost of %s (%s) without explicit payment is greater than the maximum allowed payment of %s", e.Query, e.Cost, e.Max)
}

// TransportError wraps a transport failure the engine does not retry.
type TransportError struct {
	Node ledger.AccountID
	Err  error
}

// Error ...
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error from node %s: %v", e.Node, e.Err)
}

// Unwrap ...
func (e *TransportError) Unwrap() error {
	return e.Err
}

// GRPCStatus lets status.FromError and status.Code see through the wrapper.
func (e *TransportError) GRPCStatus() *status.Status {
	s, _ := status.FromError(e.Err)
	return s
}

// IsPrecheck checks that err is, or wraps, a PrecheckStatusError with the
// given status.
func IsPrecheck(err error, st ledger.Status) bool {
	var pe *PrecheckStatusError
	return errors.As(err, &pe) && pe.Status == st
}

// IsMaxAttempts ...
func IsMaxAttempts(err error) bool {
	var me *MaxAttemptsExceededError
	return errors.As(err, &me)
}

// IsTimeout ...
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsMaxQueryPayment ...
func IsMaxQueryPayment(err error) bool {
	var qe *MaxQueryPaymentExceededError
	return errors.As(err, &qe)
}

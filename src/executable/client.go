package executable

import (
	"crypto/ecdsa"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/crypto/keys"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/network"
	"github.com/sirupsen/logrus"
)

// Client is the read-only view of the owning client the engine and the
// request types need.
type Client interface {
	Network() *network.Network
	Pool() *common.WorkerPool
	Logger() *logrus.Entry

	MaxAttempts() int
	MinBackoff() time.Duration
	MaxBackoff() time.Duration
	RequestTimeout() time.Duration
	GRPCDeadline() time.Duration
	MaxQueryPayment() ledger.Hbar
	AutoValidateChecksums() bool

	// Metrics may return nil.
	Metrics() *Metrics

	// Operator returns nil when no operator is set.
	Operator() *Operator
}

// Operator is the account that pays for transactions and queries, and the
// key that signs on its behalf.
type Operator struct {
	AccountID  ledger.AccountID
	PrivateKey *ecdsa.PrivateKey
}

// PublicKey returns the marshalled public key of the operator.
func (o *Operator) PublicKey() []byte {
	return keys.FromPublicKey(&o.PrivateKey.PublicKey)
}

// Sign ...
func (o *Operator) Sign(data []byte) ([]byte, error) {
	return keys.Sign(o.PrivateKey, data)
}

package node

import (
	"context"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/net"
	"github.com/sirupsen/logrus"
)

// ConnectCeiling bounds how long ChannelFailedToConnect waits for a channel to
// become ready, regardless of the caller's deadline.
const ConnectCeiling = 10 * time.Second

// Default node backoff bounds.
const (
	DefaultMinBackoff = 8 * time.Second
	DefaultMaxBackoff = time.Hour
)

// Config holds what a Node needs besides its identity and address.
type Config struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Dialer     net.Dialer
	Logger     *logrus.Entry

	// Now is the clock used for backoff arithmetic. Nil means time.Now.
	Now func() time.Time
}

// Node is one endpoint of a network participant.
type Node struct {
	accountID ledger.AccountID
	address   string
	dialer    net.Dialer
	now       func() time.Time
	logger    *logrus.Entry

	mu             sync.Mutex
	channel        net.Channel
	hasConnected   bool
	minBackoff     time.Duration
	maxBackoff     time.Duration
	currentBackoff time.Duration
	lastErrorAt    time.Time
	failed         bool
	usedCount      int64
	failureCount   int64
	closed         bool
}

// NewNode ...
func NewNode(accountID ledger.AccountID, address string, conf Config) *Node {
	minBackoff, maxBackoff := conf.MinBackoff, conf.MaxBackoff
	if minBackoff <= 0 {
		minBackoff = DefaultMinBackoff
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}

	now := conf.Now
	if now == nil {
		now = time.Now
	}

	logger := conf.Logger
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Node{
		accountID:      accountID,
		address:        address,
		dialer:         conf.Dialer,
		now:            now,
		logger:         logger.WithFields(logrus.Fields{"node": accountID.String(), "address": address}),
		minBackoff:     minBackoff,
		maxBackoff:     maxBackoff,
		currentBackoff: minBackoff,
	}
}

// AccountID returns the identity of the participant this endpoint serves.
func (n *Node) AccountID() ledger.AccountID {
	return n.accountID
}

// Address ...
func (n *Node) Address() string {
	return n.address
}

// Logger returns an entry tagged with the node's identity and address.
func (n *Node) Logger() *logrus.Entry {
	return n.logger
}

/*******************************************************************************
Health
*******************************************************************************/

// IsHealthy is true when the node never failed, or when its current backoff
// has fully elapsed since the last failure.
func (n *Node) IsHealthy() bool {
	return n.RemainingBackoff() == 0
}

// RemainingBackoff is the time until IsHealthy becomes true, 0 if it already
// is.
func (n *Node) RemainingBackoff() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.failed {
		return 0
	}

	remaining := n.lastErrorAt.Add(n.currentBackoff).Sub(n.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess resets the backoff to the minimum and clears the last
// failure.
func (n *Node) RecordSuccess() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.currentBackoff = n.minBackoff
	n.failed = false
}

// RecordFailure doubles the backoff, capped at the maximum, and stamps the
// failure time.
func (n *Node) RecordFailure() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.currentBackoff *= 2
	if n.currentBackoff > n.maxBackoff {
		n.currentBackoff = n.maxBackoff
	}
	n.lastErrorAt = n.now()
	n.failed = true
	n.failureCount++
}

// CurrentBackoff ...
func (n *Node) CurrentBackoff() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentBackoff
}

// SetBackoffBounds changes the node backoff bounds. The current backoff is
// clamped into the new range.
func (n *Node) SetBackoffBounds(minBackoff, maxBackoff time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.minBackoff = minBackoff
	n.maxBackoff = maxBackoff
	if n.currentBackoff < minBackoff {
		n.currentBackoff = minBackoff
	}
	if n.currentBackoff > maxBackoff {
		n.currentBackoff = maxBackoff
	}
}

// InUse counts one more request sent through the node.
func (n *Node) InUse() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.usedCount++
}

/*******************************************************************************
Channel
*******************************************************************************/

// GetOrCreateChannel returns the node's channel, dialing it on first use.
func (n *Node) GetOrCreateChannel() (net.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, net.ErrChannelClosed
	}

	if n.channel == nil {
		ch, err := n.dialer(n.address)
		if err != nil {
			return nil, err
		}
		n.channel = ch
		n.hasConnected = false
	}

	return n.channel, nil
}

// ChannelFailedToConnect makes sure the channel is ready, waiting no longer
// than ConnectCeiling or the deadline of ctx. It returns true, and records a
// failure, when the channel could not be made ready in time.
func (n *Node) ChannelFailedToConnect(ctx context.Context) bool {
	n.mu.Lock()
	connected := n.hasConnected
	n.mu.Unlock()

	if connected {
		return false
	}

	ch, err := n.GetOrCreateChannel()
	if err != nil {
		n.logger.WithError(err).Debug("Creating channel")
		n.RecordFailure()
		return true
	}

	connectCtx, cancel := context.WithTimeout(ctx, ConnectCeiling)
	defer cancel()

	if err := ch.Connect(connectCtx); err != nil {
		n.logger.WithError(err).Debug("Channel failed to connect")
		n.RecordFailure()
		return true
	}

	n.mu.Lock()
	n.hasConnected = true
	n.mu.Unlock()

	return false
}

// Close closes the channel, if any. A closed node cannot be used again.
func (n *Node) Close() error {
	n.mu.Lock()
	ch := n.channel
	n.channel = nil
	n.closed = true
	n.mu.Unlock()

	if ch != nil {
		return ch.Close()
	}
	return nil
}

/*******************************************************************************
Stats
*******************************************************************************/

// Stats is a point-in-time view of a node's health.
type Stats struct {
	AccountID        string        `json:"account_id"`
	Address          string        `json:"address"`
	Healthy          bool          `json:"healthy"`
	CurrentBackoff   time.Duration `json:"current_backoff"`
	RemainingBackoff time.Duration `json:"remaining_backoff"`
	UsedCount        int64         `json:"used_count"`
	FailureCount     int64         `json:"failure_count"`
	ChannelState     string        `json:"channel_state"`
}

// GetStats ...
func (n *Node) GetStats() Stats {
	remaining := n.RemainingBackoff()

	n.mu.Lock()
	defer n.mu.Unlock()

	state := "IDLE"
	if n.channel != nil {
		state = n.channel.State()
	}
	if n.closed {
		state = "SHUTDOWN"
	}

	return Stats{
		AccountID:        n.accountID.String(),
		Address:          n.address,
		Healthy:          remaining == 0,
		CurrentBackoff:   n.currentBackoff,
		RemainingBackoff: remaining,
		UsedCount:        n.usedCount,
		FailureCount:     n.failureCount,
		ChannelState:     state,
	}
}

package network

import (
	"context"
	"sync"

	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/node"
	"github.com/sirupsen/logrus"
)

// MirrorNetwork is the pool of mirror nodes used for streaming queries and
// address-book lookups. Mirror nodes have no participant identity.
type MirrorNetwork struct {
	conf   Config
	logger *logrus.Entry

	mu     sync.Mutex
	nodes  []*node.Node
	cursor int
	closed bool
}

// NewMirrorNetwork ...
func NewMirrorNetwork(conf Config) *MirrorNetwork {
	if conf.Logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		conf.Logger = logrus.NewEntry(log)
	}
	if conf.CloseTimeout <= 0 {
		conf.CloseTimeout = DefaultCloseTimeout
	}

	return &MirrorNetwork{
		conf:   conf,
		logger: conf.Logger.WithField("component", "mirror"),
	}
}

// SetNetwork replaces the mirror endpoints. Unchanged endpoints keep their
// Node.
func (m *MirrorNetwork) SetNetwork(addresses []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return common.NewClientErr("MirrorNetwork", common.Closed, "SetNetwork")
	}

	existing := make(map[string]*node.Node, len(m.nodes))
	for _, nd := range m.nodes {
		existing[nd.Address()] = nd
	}

	nodes := make([]*node.Node, 0, len(addresses))
	for _, addr := range addresses {
		nd, ok := existing[addr]
		if ok {
			delete(existing, addr)
		} else {
			nd = node.NewNode(ledger.AccountID{}, addr, node.Config{
				MinBackoff: m.conf.MinNodeBackoff,
				MaxBackoff: m.conf.MaxNodeBackoff,
				Dialer:     m.conf.Dialer,
				Logger:     m.conf.Logger,
				Now:        m.conf.Now,
			})
		}
		nodes = append(nodes, nd)
	}

	for _, nd := range existing {
		go nd.Close()
	}

	m.nodes = nodes
	m.cursor = 0

	return nil
}

// Addresses ...
func (m *MirrorNetwork) Addresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]string, 0, len(m.nodes))
	for _, nd := range m.nodes {
		res = append(res, nd.Address())
	}
	return res
}

// NextNode returns mirror nodes round-robin, skipping unhealthy ones while a
// healthy one exists.
func (m *MirrorNetwork) NextNode() (*node.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.nodes) == 0 {
		return nil, common.NewClientErr("MirrorNetwork", common.Empty, "NextNode")
	}

	nd, idx := Select(m.nodes, m.cursor)
	m.cursor = idx + 1

	return nd, nil
}

// Close ...
func (m *MirrorNetwork) Close(ctx context.Context) error {
	m.mu.Lock()
	nodes := m.nodes
	m.nodes = nil
	m.closed = true
	m.mu.Unlock()

	return closeAll(ctx, nodes)
}

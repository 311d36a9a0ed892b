package network

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/addressbook"
	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/net"
	"github.com/mosaicnetworks/ledgerclient/src/node"
	"github.com/sirupsen/logrus"
)

// DefaultCloseTimeout bounds how long closing removed nodes may take.
const DefaultCloseTimeout = 30 * time.Second

// Config ...
type Config struct {
	MinNodeBackoff time.Duration
	MaxNodeBackoff time.Duration
	CloseTimeout   time.Duration

	// MaxNodesPerRequest caps NodeAccountIDsForExecute. Zero means a third of
	// the network, rounded up.
	MaxNodesPerRequest int

	Dialer net.Dialer
	Logger *logrus.Entry
	Now    func() time.Time
}

// Network is a pool of Nodes grouped by participant identity.
type Network struct {
	conf   Config
	logger *logrus.Entry

	mu        sync.RWMutex
	byAccount map[ledger.AccountID][]*node.Node
	byAddress map[string]*node.Node
	ids       []ledger.AccountID
	verifiers map[string]net.CertVerifier
	closed    bool

	refresher *Refresher
	closeWg   sync.WaitGroup
}

// NewNetwork creates an empty network. Use SetNetwork to populate it.
func NewNetwork(conf Config) *Network {
	if conf.Logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		conf.Logger = logrus.NewEntry(log)
	}
	if conf.CloseTimeout <= 0 {
		conf.CloseTimeout = DefaultCloseTimeout
	}

	return &Network{
		conf:      conf,
		logger:    conf.Logger.WithField("component", "network"),
		byAccount: make(map[ledger.AccountID][]*node.Node),
		byAddress: make(map[string]*node.Node),
		verifiers: make(map[string]net.CertVerifier),
	}
}

// SetNetwork replaces the node set with the given address -> participant map.
// Nodes whose address and participant are unchanged are kept as they are.
// Nodes that disappear are closed in the background within the close
// timeout.
func (n *Network) SetNetwork(network map[string]ledger.AccountID) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return common.NewClientErr("Network", common.Closed, "SetNetwork")
	}

	byAccount := make(map[ledger.AccountID][]*node.Node)
	byAddress := make(map[string]*node.Node)

	addresses := make([]string, 0, len(network))
	for addr := range network {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	for _, addr := range addresses {
		id := network[addr]

		nd, ok := n.byAddress[addr]
		if !ok || nd.AccountID() != id {
			nd = node.NewNode(id, addr, node.Config{
				MinBackoff: n.conf.MinNodeBackoff,
				MaxBackoff: n.conf.MaxNodeBackoff,
				Dialer:     n.conf.Dialer,
				Logger:     n.conf.Logger,
				Now:        n.conf.Now,
			})
		}

		byAddress[addr] = nd
		byAccount[id] = append(byAccount[id], nd)
	}

	var removed []*node.Node
	for addr, nd := range n.byAddress {
		if kept, ok := byAddress[addr]; !ok || kept != nd {
			removed = append(removed, nd)
		}
	}

	ids := make([]ledger.AccountID, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sortAccountIDs(ids)

	n.byAccount = byAccount
	n.byAddress = byAddress
	n.ids = ids

	n.logger.WithFields(logrus.Fields{
		"nodes":   len(byAddress),
		"removed": len(removed),
	}).Debug("SetNetwork")

	n.closeNodes(removed)

	return nil
}

// SetAddressBook replaces the node set with the endpoints of the book and
// remembers the certificate hash of each endpoint.
func (n *Network) SetAddressBook(book *addressbook.AddressBook) error {
	verifiers := make(map[string]net.CertVerifier)
	for _, na := range book.Nodes {
		if v := na.Verifier(); v != nil {
			for _, e := range na.Endpoints {
				verifiers[e.String()] = v
			}
		}
	}

	n.mu.Lock()
	n.verifiers = verifiers
	n.mu.Unlock()

	return n.SetNetwork(book.ToNetwork())
}

// VerifierFor returns the certificate verifier of an endpoint, nil if its
// certificate hash is unknown.
func (n *Network) VerifierFor(address string) net.CertVerifier {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.verifiers[address]
}

func (n *Network) closeNodes(nodes []*node.Node) {
	if len(nodes) == 0 {
		return
	}

	n.closeWg.Add(1)
	go func() {
		defer n.closeWg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.conf.CloseTimeout)
		defer cancel()

		if err := closeAll(ctx, nodes); err != nil {
			n.logger.WithError(err).Warn("Closing removed nodes")
		}
	}()
}

// Network returns the current address -> participant map.
func (n *Network) Network() map[string]ledger.AccountID {
	n.mu.RLock()
	defer n.mu.RUnlock()

	res := make(map[string]ledger.AccountID, len(n.byAddress))
	for addr, nd := range n.byAddress {
		res[addr] = nd.AccountID()
	}
	return res
}

// AccountIDs returns the participants in ascending order.
func (n *Network) AccountIDs() []ledger.AccountID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]ledger.AccountID(nil), n.ids...)
}

// Nodes returns every endpoint, ordered by participant then address.
func (n *Network) Nodes() []*node.Node {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var res []*node.Node
	for _, id := range n.ids {
		res = append(res, n.byAccount[id]...)
	}
	return res
}

// Proxies returns the endpoints of one participant.
func (n *Network) Proxies(id ledger.AccountID) ([]*node.Node, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	nodes, ok := n.byAccount[id]
	if !ok || len(nodes) == 0 {
		return nil, common.NewClientErr("Network", common.NotFound, id.String())
	}
	return append([]*node.Node(nil), nodes...), nil
}

// NodeAccountIDsForExecute picks the participants a request without explicit
// nodes is sent to: a random selection of healthy participants, a third of
// the network by default, topped up with unhealthy ones when too few are
// healthy.
func (n *Network) NodeAccountIDsForExecute() []ledger.AccountID {
	n.mu.RLock()
	ids := append([]ledger.AccountID(nil), n.ids...)
	healthy := make(map[ledger.AccountID]bool, len(ids))
	for _, id := range ids {
		for _, nd := range n.byAccount[id] {
			if nd.IsHealthy() {
				healthy[id] = true
				break
			}
		}
	}
	n.mu.RUnlock()

	count := n.conf.MaxNodesPerRequest
	if count <= 0 {
		count = (len(ids) + 2) / 3
	}
	if count > len(ids) {
		count = len(ids)
	}

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	sort.SliceStable(ids, func(i, j int) bool { return healthy[ids[i]] && !healthy[ids[j]] })

	return ids[:count]
}

// Candidates resolves participants to the nodes a request cycles through.
// With several participants each contributes one endpoint, a healthy one if
// possible. With a single participant all of its endpoints are candidates, in
// random order, so that failover happens across its proxies.
func (n *Network) Candidates(ids []ledger.AccountID) ([]*node.Node, error) {
	if len(ids) == 1 {
		proxies, err := n.Proxies(ids[0])
		if err != nil {
			return nil, err
		}
		rand.Shuffle(len(proxies), func(i, j int) { proxies[i], proxies[j] = proxies[j], proxies[i] })
		return proxies, nil
	}

	res := make([]*node.Node, 0, len(ids))
	for _, id := range ids {
		proxies, err := n.Proxies(id)
		if err != nil {
			return nil, err
		}
		rand.Shuffle(len(proxies), func(i, j int) { proxies[i], proxies[j] = proxies[j], proxies[i] })
		chosen, _ := Select(proxies, 0)
		res = append(res, chosen)
	}
	return res, nil
}

// SelectNode returns the candidate to try next, starting at cursor, along with
// its index. See Select.
func (n *Network) SelectNode(candidates []*node.Node, cursor int) (*node.Node, int) {
	return Select(candidates, cursor)
}

// IncreaseBackoff degrades a node outside the normal failure path, typically
// because it reported that it is not the participant the request was built
// for. It also schedules a refresh of the node set from the address book.
func (n *Network) IncreaseBackoff(nd *node.Node) {
	nd.RecordFailure()

	nd.Logger().WithField("remaining_backoff", nd.RemainingBackoff()).Debug("IncreaseBackoff")

	n.RefreshFromAddressBook()
}

// SetRefresher installs the refresher used by RefreshFromAddressBook.
func (n *Network) SetRefresher(r *Refresher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refresher = r
}

// RefreshFromAddressBook starts an asynchronous, best-effort refresh of the
// node set. It does nothing when no refresher is installed or when a refresh
// is already running.
func (n *Network) RefreshFromAddressBook() {
	n.mu.RLock()
	r := n.refresher
	n.mu.RUnlock()

	if r != nil {
		r.Trigger()
	}
}

// GetStats returns the health of every node.
func (n *Network) GetStats() []node.Stats {
	nodes := n.Nodes()
	res := make([]node.Stats, 0, len(nodes))
	for _, nd := range nodes {
		res = append(res, nd.GetStats())
	}
	return res
}

// Close closes every node and waits for background closes, until ctx is done.
func (n *Network) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	nodes := make([]*node.Node, 0, len(n.byAddress))
	for _, nd := range n.byAddress {
		nodes = append(nodes, nd)
	}
	r := n.refresher
	n.mu.Unlock()

	if r != nil {
		r.Stop()
	}

	err := closeAll(ctx, nodes)

	done := make(chan struct{})
	go func() {
		n.closeWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}

	return err
}

func closeAll(ctx context.Context, nodes []*node.Node) error {
	done := make(chan struct{})

	go func() {
		var wg sync.WaitGroup
		for _, nd := range nodes {
			wg.Add(1)
			go func(nd *node.Node) {
				defer wg.Done()
				nd.Close()
			}(nd)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sortAccountIDs(ids []ledger.AccountID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}

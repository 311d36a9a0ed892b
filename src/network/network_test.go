package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/addressbook"
	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/net"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHealth records how often its backoff was consulted.
type fakeHealth struct {
	name      string
	remaining time.Duration
	consulted int32
}

func (f *fakeHealth) RemainingBackoff() time.Duration {
	atomic.AddInt32(&f.consulted, 1)
	return f.remaining
}

func TestSelectShortCircuitsOnHealthy(t *testing.T) {
	a := &fakeHealth{name: "A"}
	b := &fakeHealth{name: "B", remaining: 3000 * time.Millisecond}
	c := &fakeHealth{name: "C", remaining: 2000 * time.Millisecond}

	chosen, idx := Select([]*fakeHealth{a, b, c}, 0)

	assert.Equal(t, "A", chosen.name)
	assert.Equal(t, 0, idx)
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.consulted))
	assert.Equal(t, int32(0), atomic.LoadInt32(&c.consulted))
}

func TestSelectLeastBroken(t *testing.T) {
	nodes := []*fakeHealth{
		{name: "0", remaining: 4000 * time.Millisecond},
		{name: "1", remaining: 3000 * time.Millisecond},
		{name: "2", remaining: 5000 * time.Millisecond},
	}

	chosen, idx := Select(nodes, 0)
	assert.Equal(t, "1", chosen.name)
	assert.Equal(t, 1, idx)

	// every node was consulted exactly once
	for _, n := range nodes {
		assert.Equal(t, int32(1), atomic.LoadInt32(&n.consulted))
	}
}

func TestSelectTiesGoToScanOrder(t *testing.T) {
	nodes := []*fakeHealth{
		{name: "0", remaining: time.Second},
		{name: "1", remaining: 2 * time.Second},
		{name: "2", remaining: time.Second},
	}

	chosen, _ := Select(nodes, 0)
	assert.Equal(t, "0", chosen.name)

	// starting after the first minimum, the scan meets node 2 first
	chosen, _ = Select(nodes, 1)
	assert.Equal(t, "2", chosen.name)
}

func TestSelectWrapsAroundCursor(t *testing.T) {
	nodes := []*fakeHealth{
		{name: "0"},
		{name: "1", remaining: time.Second},
		{name: "2", remaining: time.Second},
	}

	chosen, idx := Select(nodes, 1)
	assert.Equal(t, "0", chosen.name)
	assert.Equal(t, 0, idx)

	chosen, idx = Select(nodes, 4)
	assert.Equal(t, "0", chosen.name)
	assert.Equal(t, 0, idx)

	_, idx = Select([]*fakeHealth{}, 0)
	assert.Equal(t, -1, idx)
}

func TestSelectNeverReturnsUnhealthyWhenHealthyExists(t *testing.T) {
	for healthy := 0; healthy < 5; healthy++ {
		for cursor := 0; cursor < 5; cursor++ {
			nodes := make([]*fakeHealth, 5)
			for i := range nodes {
				nodes[i] = &fakeHealth{remaining: time.Duration(i+1) * time.Second}
			}
			nodes[healthy].remaining = 0

			chosen, idx := Select(nodes, cursor)
			if chosen.remaining != 0 || idx != healthy {
				t.Fatalf("healthy=%d cursor=%d: selected %d", healthy, cursor, idx)
			}
		}
	}
}

func newTestNetwork(t *testing.T, inmem *net.InmemNetwork) *Network {
	return NewNetwork(Config{
		MinNodeBackoff: time.Second,
		MaxNodeBackoff: 10 * time.Second,
		CloseTimeout:   time.Second,
		Dialer:         inmem.Dialer(),
		Logger:         common.NewTestEntry(t, logrus.DebugLevel),
	})
}

func TestSetNetworkKeepsHealth(t *testing.T) {
	inmem := net.NewInmemNetwork()
	n := newTestNetwork(t, inmem)
	defer n.Close(context.Background())

	require.NoError(t, n.SetNetwork(map[string]ledger.AccountID{
		"node0:50211": ledger.NewAccountID(3),
		"node1:50211": ledger.NewAccountID(4),
		"node2:50211": ledger.NewAccountID(5),
	}))

	assert.Equal(t, []ledger.AccountID{ledger.NewAccountID(3), ledger.NewAccountID(4), ledger.NewAccountID(5)}, n.AccountIDs())

	proxies, err := n.Proxies(ledger.NewAccountID(4))
	require.NoError(t, err)
	require.Len(t, proxies, 1)
	kept := proxies[0]
	kept.RecordFailure()

	removed, _ := n.Proxies(ledger.NewAccountID(5))
	removedCh, err := removed[0].GetOrCreateChannel()
	require.NoError(t, err)

	require.NoError(t, n.SetNetwork(map[string]ledger.AccountID{
		"node1:50211": ledger.NewAccountID(4),
		"node3:50211": ledger.NewAccountID(4),
	}))

	proxies, err = n.Proxies(ledger.NewAccountID(4))
	require.NoError(t, err)
	assert.Len(t, proxies, 2)
	assert.Contains(t, proxies, kept)
	assert.False(t, kept.IsHealthy())

	_, err = n.Proxies(ledger.NewAccountID(5))
	assert.True(t, common.IsClient(err, common.NotFound))

	assert.Eventually(t, func() bool {
		return removedCh.State() == "SHUTDOWN"
	}, time.Second, 5*time.Millisecond)
}

func TestCandidates(t *testing.T) {
	n := newTestNetwork(t, net.NewInmemNetwork())
	defer n.Close(context.Background())

	require.NoError(t, n.SetNetwork(map[string]ledger.AccountID{
		"a:1": ledger.NewAccountID(3),
		"b:1": ledger.NewAccountID(3),
		"c:1": ledger.NewAccountID(4),
	}))

	// a single identity fans out to all its proxies
	nodes, err := n.Candidates([]ledger.AccountID{ledger.NewAccountID(3)})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	nodes, err = n.Candidates([]ledger.AccountID{ledger.NewAccountID(3), ledger.NewAccountID(4)})
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, ledger.NewAccountID(3), nodes[0].AccountID())
	assert.Equal(t, ledger.NewAccountID(4), nodes[1].AccountID())

	// an unhealthy proxy is passed over when a healthy one exists
	proxies, _ := n.Proxies(ledger.NewAccountID(3))
	proxies[0].RecordFailure()
	for i := 0; i < 10; i++ {
		nodes, err = n.Candidates([]ledger.AccountID{ledger.NewAccountID(3), ledger.NewAccountID(4)})
		require.NoError(t, err)
		assert.Equal(t, proxies[1], nodes[0])
	}

	_, err = n.Candidates([]ledger.AccountID{ledger.NewAccountID(9)})
	assert.Error(t, err)
}

func TestNodeAccountIDsForExecute(t *testing.T) {
	n := newTestNetwork(t, net.NewInmemNetwork())
	defer n.Close(context.Background())

	network := map[string]ledger.AccountID{}
	for i := 0; i < 7; i++ {
		network[string(rune('a'+i))+":1"] = ledger.NewAccountID(uint64(3 + i))
	}
	require.NoError(t, n.SetNetwork(network))

	ids := n.NodeAccountIDsForExecute()
	assert.Len(t, ids, 3)

	// unhealthy participants are only used to top up
	for _, nd := range n.Nodes()[:5] {
		nd.RecordFailure()
	}
	for i := 0; i < 10; i++ {
		ids = n.NodeAccountIDsForExecute()
		require.Len(t, ids, 3)
		assert.ElementsMatch(t, ids[:2], []ledger.AccountID{ledger.NewAccountID(8), ledger.NewAccountID(9)})
	}
}

type fakeSource struct {
	mu    sync.Mutex
	calls int
	fails int
	book  *addressbook.AddressBook
}

func (f *fakeSource) AddressBook(ctx context.Context) (*addressbook.AddressBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("mirror unavailable")
	}
	return f.book, nil
}

type fakeSink struct {
	mu      sync.Mutex
	written []*addressbook.AddressBook
}

func (f *fakeSink) Write(book *addressbook.AddressBook) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, book)
	return nil
}

func TestRefresherRetriesAndInstalls(t *testing.T) {
	n := newTestNetwork(t, net.NewInmemNetwork())
	defer n.Close(context.Background())

	require.NoError(t, n.SetNetwork(map[string]ledger.AccountID{"old:1": ledger.NewAccountID(3)}))

	source := &fakeSource{
		fails: 2,
		book: addressbook.NewAddressBook([]*addressbook.NodeAddress{
			{AccountID: ledger.NewAccountID(4), Endpoints: []addressbook.Endpoint{{Address: "new", Port: 1}}},
		}),
	}
	sink := &fakeSink{}

	r := NewRefresher(n, source, sink, common.NewTestEntry(t, logrus.DebugLevel))
	r.InitialInterval = time.Millisecond
	n.SetRefresher(r)

	require.NoError(t, r.Refresh(context.Background()))

	assert.Equal(t, 3, source.calls)
	assert.Equal(t, map[string]ledger.AccountID{"new:1": ledger.NewAccountID(4)}, n.Network())
	assert.Len(t, sink.written, 1)

	// same book again: nothing reinstalled or rewritten
	require.NoError(t, r.Refresh(context.Background()))
	assert.Len(t, sink.written, 1)
	assert.Equal(t, 2, r.Count())
}

func TestRefresherFailedInstallIsRetried(t *testing.T) {
	n := newTestNetwork(t, net.NewInmemNetwork())

	source := &fakeSource{book: addressbook.NewAddressBook([]*addressbook.NodeAddress{
		{AccountID: ledger.NewAccountID(3), Endpoints: []addressbook.Endpoint{{Address: "a", Port: 1}}},
	})}
	sink := &fakeSink{}

	r := NewRefresher(n, source, sink, common.NewTestEntry(t, logrus.DebugLevel))
	r.InitialInterval = time.Millisecond

	// a closed network rejects the book
	require.NoError(t, n.Close(context.Background()))

	require.Error(t, r.Refresh(context.Background()))
	assert.Empty(t, r.lastHash)

	// the same book is installed again instead of being skipped as unchanged
	require.Error(t, r.Refresh(context.Background()))
	assert.Equal(t, 2, source.calls)
	assert.Empty(t, sink.written)
}

func TestIncreaseBackoffTriggersRefresh(t *testing.T) {
	n := newTestNetwork(t, net.NewInmemNetwork())
	defer n.Close(context.Background())

	require.NoError(t, n.SetNetwork(map[string]ledger.AccountID{"a:1": ledger.NewAccountID(3)}))

	source := &fakeSource{book: addressbook.NewAddressBook([]*addressbook.NodeAddress{
		{AccountID: ledger.NewAccountID(3), Endpoints: []addressbook.Endpoint{{Address: "a", Port: 1}}},
		{AccountID: ledger.NewAccountID(4), Endpoints: []addressbook.Endpoint{{Address: "b", Port: 1}}},
	})}
	r := NewRefresher(n, source, nil, nil)
	n.SetRefresher(r)

	nd := n.Nodes()[0]
	n.IncreaseBackoff(nd)
	r.Wait()

	assert.False(t, nd.IsHealthy())
	assert.Len(t, n.AccountIDs(), 2)

	// the surviving endpoint kept its health
	proxies, _ := n.Proxies(ledger.NewAccountID(3))
	assert.Equal(t, nd, proxies[0])
}

func TestRefresherStopped(t *testing.T) {
	n := newTestNetwork(t, net.NewInmemNetwork())
	source := &fakeSource{}
	r := NewRefresher(n, source, nil, nil)
	n.SetRefresher(r)

	require.NoError(t, n.Close(context.Background()))

	n.RefreshFromAddressBook()
	r.Wait()
	assert.Equal(t, 0, source.calls)

	assert.True(t, common.IsClient(n.SetNetwork(nil), common.Closed))
}

func TestMirrorNetwork(t *testing.T) {
	m := NewMirrorNetwork(Config{
		MinNodeBackoff: time.Second,
		MaxNodeBackoff: time.Minute,
		Dialer:         net.NewInmemNetwork().Dialer(),
	})

	_, err := m.NextNode()
	assert.True(t, common.IsClient(err, common.Empty))

	require.NoError(t, m.SetNetwork([]string{"m0:443", "m1:443"}))
	assert.Equal(t, []string{"m0:443", "m1:443"}, m.Addresses())

	a, _ := m.NextNode()
	b, _ := m.NextNode()
	c, _ := m.NextNode()
	assert.Equal(t, "m0:443", a.Address())
	assert.Equal(t, "m1:443", b.Address())
	assert.Equal(t, "m0:443", c.Address())

	a.RecordFailure()
	for i := 0; i < 3; i++ {
		nd, _ := m.NextNode()
		assert.Equal(t, "m1:443", nd.Address())
	}

	require.NoError(t, m.Close(context.Background()))
	assert.Error(t, m.SetNetwork([]string{"m2:443"}))
}

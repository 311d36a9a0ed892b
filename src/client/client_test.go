package client_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/addressbook"
	"github.com/mosaicnetworks/ledgerclient/src/client"
	"github.com/mosaicnetworks/ledgerclient/src/crypto/keys"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/ledgertest"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newClient(t *testing.T, l *ledgertest.Ledger) *client.Client {
	c, err := client.FromConfig(l.Config(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func entries(n int) []*proto.NodeAddress {
	res := make([]*proto.NodeAddress, 0, n)
	for i := 0; i < n; i++ {
		res = append(res, &proto.NodeAddress{
			NodeID:           int64(i),
			NodeAccountID:    ledgertest.NodeID(i),
			ServiceEndpoints: []proto.ServiceEndpoint{{Address: fmt.Sprintf("node%d", i), Port: 50211}},
		})
	}
	return res
}

func TestForNetwork(t *testing.T) {
	nodes := map[string]ledger.AccountID{
		"35.237.200.180:50211": ledger.NewAccountID(3),
		"35.186.191.247:50211": ledger.NewAccountID(4),
	}

	c, err := client.ForNetwork(nodes)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, nodes, c.Network().Network())
	assert.Nil(t, c.Operator())
	assert.Equal(t, 10, c.MaxAttempts())
	assert.Empty(t, c.MirrorNetwork().Addresses())
}

func TestFromConfigInvalid(t *testing.T) {
	l := ledgertest.New(1)

	conf := l.Config(t)
	conf.MaxAttempts = 0
	_, err := client.FromConfig(conf)
	assert.Error(t, err)

	conf = l.Config(t)
	conf.Network = []string{"node0:50211"}
	_, err = client.FromConfig(conf)
	assert.Error(t, err)

	conf = l.Config(t)
	conf.OperatorID = "0.0.1001"
	_, err = client.FromConfig(conf)
	assert.Error(t, err, "operator without key")
}

func TestOperatorFromConfig(t *testing.T) {
	l := ledgertest.New(1)
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	conf := l.Config(t)
	conf.OperatorID = "0.0.1001"
	conf.OperatorKey = keys.PrivateKeyHex(key)

	c, err := client.FromConfig(conf)
	require.NoError(t, err)
	defer c.Close()

	op := c.Operator()
	require.NotNil(t, op)
	assert.Equal(t, ledger.NewAccountID(1001), op.AccountID)
	assert.Equal(t, key.D, op.PrivateKey.D)
}

func TestOperatorFromKeyfile(t *testing.T) {
	l := ledgertest.New(1)
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	conf := l.Config(t)
	conf.DataDir = t.TempDir()
	conf.OperatorID = "0.0.1001"
	require.NoError(t, keys.NewKeyfile(conf.Keyfile()).WriteKey(key))

	c, err := client.FromConfig(conf)
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Operator())
	assert.Equal(t, key.D, c.Operator().PrivateKey.D)
}

func TestSetters(t *testing.T) {
	c := newClient(t, ledgertest.New(1))

	assert.Error(t, c.SetMaxAttempts(0))
	require.NoError(t, c.SetMaxAttempts(3))
	assert.Equal(t, 3, c.MaxAttempts())

	assert.Error(t, c.SetBackoff(2*time.Second, time.Second))
	assert.Error(t, c.SetBackoff(-time.Second, time.Second))
	require.NoError(t, c.SetBackoff(time.Millisecond, time.Second))
	assert.Equal(t, time.Millisecond, c.MinBackoff())
	assert.Equal(t, time.Second, c.MaxBackoff())

	c.SetRequestTimeout(time.Minute)
	assert.Equal(t, time.Minute, c.RequestTimeout())

	c.SetGRPCDeadline(3 * time.Second)
	assert.Equal(t, 3*time.Second, c.GRPCDeadline())

	c.SetMaxQueryPayment(ledger.NewHbar(5))
	assert.Equal(t, ledger.NewHbar(5), c.MaxQueryPayment())

	c.SetAutoValidateChecksums(true)
	assert.True(t, c.AutoValidateChecksums())
}

func TestPing(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l)

	require.NoError(t, c.Ping(context.Background(), ledgertest.NodeID(1)))

	assert.Equal(t, 1, l.Calls(1, proto.MethodGetAccountBalance))
	assert.Equal(t, 0, l.Calls(0, proto.MethodGetAccountBalance))
	assert.Equal(t, 0, l.Calls(2, proto.MethodGetAccountBalance))
}

func TestPingAll(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l)

	require.NoError(t, c.PingAll(context.Background()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, l.Calls(i, proto.MethodGetAccountBalance), "node %d", i)
	}
}

func TestPingNodeDown(t *testing.T) {
	l := ledgertest.New(2)
	l.Down(1, status.Error(codes.Unavailable, "down"))

	conf := l.Config(t)
	conf.MaxAttempts = 2
	conf.RequestTimeout = 500 * time.Millisecond

	c, err := client.FromConfig(conf)
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Ping(context.Background(), ledgertest.NodeID(0)))
	assert.Error(t, c.Ping(context.Background(), ledgertest.NodeID(1)))
	assert.Error(t, c.PingAll(context.Background()))
}

func TestGetStats(t *testing.T) {
	l := ledgertest.New(3)
	c := newClient(t, l)

	require.NoError(t, c.PingAll(context.Background()))

	stats := c.GetStats()
	require.Len(t, stats.Nodes, 3)
	assert.Equal(t, int64(3), stats.Requests.Executions)
	assert.Equal(t, int64(3), stats.Requests.Attempts)

	for _, s := range stats.Nodes {
		assert.True(t, s.Healthy)
		assert.Equal(t, int64(1), s.UsedCount)
	}
}

func TestUpdateNetworkWithoutSource(t *testing.T) {
	c := newClient(t, ledgertest.New(1))

	err := c.UpdateNetworkFromAddressBook(context.Background())
	assert.Equal(t, client.ErrNoAddressBookSource, err)
}

func TestUpdateNetworkFromMirror(t *testing.T) {
	l := ledgertest.New(3)
	l.SetAddressBook(entries(2))

	conf := l.Config(t)
	conf.MirrorNetwork = []string{ledgertest.MirrorAddress}

	c, err := client.FromConfig(conf)
	require.NoError(t, err)
	defer c.Close()

	require.Len(t, c.Network().Network(), 3)

	require.NoError(t, c.UpdateNetworkFromAddressBook(context.Background()))

	assert.Equal(t, map[string]ledger.AccountID{
		ledgertest.NodeAddress(0): ledgertest.NodeID(0),
		ledgertest.NodeAddress(1): ledgertest.NodeID(1),
	}, c.Network().Network())

	require.NoError(t, c.PingAll(context.Background()))
	assert.Equal(t, 0, l.Calls(2, proto.MethodGetAccountBalance))
}

func TestStartFromJSONAddressBook(t *testing.T) {
	l := ledgertest.New(2)

	conf := l.Config(t)
	conf.DataDir = t.TempDir()
	conf.Network = nil

	book, err := addressbook.FromNetwork(l.Nodes())
	require.NoError(t, err)
	require.NoError(t, addressbook.NewJSONAddressBook(conf.AddressBookFile()).Write(book))

	c, err := client.FromConfig(conf)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, l.Nodes(), c.Network().Network())
	require.NoError(t, c.PingAll(context.Background()))

	// the JSON book is also the refresh source
	require.NoError(t, c.UpdateNetworkFromAddressBook(context.Background()))
}

func TestAddressBookCache(t *testing.T) {
	l := ledgertest.New(3)
	l.SetAddressBook(entries(2))
	dbDir := filepath.Join(t.TempDir(), "badger_db")

	conf := l.Config(t)
	conf.MirrorNetwork = []string{ledgertest.MirrorAddress}
	conf.AddressBookCache = true
	conf.DatabaseDir = dbDir

	c, err := client.FromConfig(conf)
	require.NoError(t, err)
	require.NoError(t, c.UpdateNetworkFromAddressBook(context.Background()))
	require.NoError(t, c.Close())

	// no configured network: the cached book is used
	conf = l.Config(t)
	conf.Network = nil
	conf.AddressBookCache = true
	conf.DatabaseDir = dbDir

	c, err = client.FromConfig(conf)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, map[string]ledger.AccountID{
		ledgertest.NodeAddress(0): ledgertest.NodeID(0),
		ledgertest.NodeAddress(1): ledgertest.NodeID(1),
	}, c.Network().Network())
}

func TestClose(t *testing.T) {
	l := ledgertest.New(2)

	c, err := client.FromConfig(l.Config(t))
	require.NoError(t, err)

	require.NoError(t, c.PingAll(context.Background()))

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	assert.Error(t, c.Ping(context.Background(), ledgertest.NodeID(0)))
}

package client

import (
	"context"
	"crypto/ecdsa"
	"os"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/addressbook"
	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/config"
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/mirror"
	"github.com/mosaicnetworks/ledgerclient/src/net"
	"github.com/mosaicnetworks/ledgerclient/src/network"
	"github.com/mosaicnetworks/ledgerclient/src/node"
	"github.com/mosaicnetworks/ledgerclient/src/query"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNoAddressBookSource is returned by UpdateNetworkFromAddressBook when the
// client has neither a mirror network nor a JSON address book.
var ErrNoAddressBookSource = errors.New("no address book source configured")

// Client is the entry point of the library. It implements executable.Client
// and mirror.Client.
type Client struct {
	conf   *config.Config
	logger *logrus.Entry

	network   *network.Network
	mirror    *network.MirrorNetwork
	pool      *common.WorkerPool
	metrics   *executable.Metrics
	refresher *network.Refresher
	cache     *addressbook.BadgerCache

	mu                    sync.RWMutex
	operator              *executable.Operator
	maxAttempts           int
	minBackoff            time.Duration
	maxBackoff            time.Duration
	requestTimeout        time.Duration
	grpcDeadline          time.Duration
	maxQueryPayment       ledger.Hbar
	autoValidateChecksums bool

	closeOnce sync.Once
	closeErr  error
}

// ForNetwork creates a client with default settings over the given
// address -> node account map.
func ForNetwork(nodes map[string]ledger.AccountID) (*Client, error) {
	conf := config.NewDefaultConfig()
	conf.DataDir = ""
	conf.NetworkUpdatePeriod = 0
	conf.SetNodeNetwork(nodes)
	return FromConfig(conf)
}

// FromConfig creates a client from a configuration. The operator, when the
// configuration has one, is set right away.
func FromConfig(conf *config.Config) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		conf:                  conf,
		logger:                conf.Logger(),
		pool:                  common.NewWorkerPool(conf.WorkerPoolSize),
		metrics:               &executable.Metrics{},
		maxAttempts:           conf.MaxAttempts,
		minBackoff:            conf.MinBackoff,
		maxBackoff:            conf.MaxBackoff,
		requestTimeout:        conf.RequestTimeout,
		grpcDeadline:          conf.GRPCDeadline,
		maxQueryPayment:       conf.MaxQueryPaymentHbar(),
		autoValidateChecksums: conf.AutoValidateChecksums,
	}

	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *Client) init() error {
	if err := c.initNetworks(); err != nil {
		return err
	}

	if err := c.initOperator(); err != nil {
		return err
	}

	if err := c.initCache(); err != nil {
		return err
	}

	if err := c.initNodes(); err != nil {
		return err
	}

	c.initRefresher()

	return nil
}

func (c *Client) initNetworks() error {
	netConf := network.Config{
		MinNodeBackoff:     c.conf.MinNodeBackoff,
		MaxNodeBackoff:     c.conf.MaxNodeBackoff,
		CloseTimeout:       c.conf.CloseTimeout,
		MaxNodesPerRequest: c.conf.MaxNodesPerRequest,
		Dialer:             c.dialer(),
		Logger:             c.logger,
	}

	c.network = network.NewNetwork(netConf)
	c.mirror = network.NewMirrorNetwork(netConf)

	return c.mirror.SetNetwork(c.conf.MirrorNetwork)
}

// dialer returns the configured Dialer, or one creating gRPC channels that
// check node certificates against the address book.
func (c *Client) dialer() net.Dialer {
	if c.conf.Dialer != nil {
		return c.conf.Dialer
	}

	tls := c.conf.TransportSecurity
	verify := c.conf.VerifyCertificates

	return func(address string) (net.Channel, error) {
		opts := net.GRPCOptions{TLS: tls}
		if tls && verify && c.network != nil {
			opts.Verifier = c.network.VerifierFor(address)
		}
		return net.NewGRPCChannel(address, opts, c.logger)
	}
}

func (c *Client) initOperator() error {
	id, key, ok, err := c.conf.Operator()
	if err != nil {
		return err
	}
	if ok {
		c.SetOperator(id, key)
	}
	return nil
}

func (c *Client) initCache() error {
	if !c.conf.AddressBookCache {
		return nil
	}

	c.logger.WithField("path", c.conf.DatabaseDir).Debug("Opening address book cache")

	cache, err := addressbook.NewBadgerCache(c.conf.DatabaseDir, c.logger)
	if err != nil {
		return errors.Wrap(err, "opening address book cache")
	}
	c.cache = cache

	return nil
}

// initNodes populates the network from the configuration, or else from the
// cache or the JSON address book.
func (c *Client) initNodes() error {
	nodes, err := c.conf.NodeNetwork()
	if err != nil {
		return err
	}
	if len(nodes) > 0 {
		return c.network.SetNetwork(nodes)
	}

	for _, src := range c.localSources() {
		book, err := src.AddressBook(context.Background())
		if err != nil {
			c.logger.WithError(err).Debug("No address book")
			continue
		}
		if book.Len() > 0 {
			c.logger.WithField("nodes", book.Len()).Debug("Loaded address book")
			return c.network.SetAddressBook(book)
		}
	}

	return nil
}

func (c *Client) localSources() []addressbook.Source {
	var res []addressbook.Source
	if c.cache != nil {
		res = append(res, c.cache)
	}
	if c.jsonAddressBookExists() {
		res = append(res, addressbook.NewJSONAddressBook(c.conf.AddressBookFile()))
	}
	return res
}

func (c *Client) jsonAddressBookExists() bool {
	if c.conf.DataDir == "" {
		return false
	}
	_, err := os.Stat(c.conf.AddressBookFile())
	return err == nil
}

func (c *Client) initRefresher() {
	var source addressbook.Source
	switch {
	case len(c.mirror.Addresses()) > 0:
		source = mirror.NewAddressBookQuery().Source(c)
	case c.jsonAddressBookExists():
		source = addressbook.NewJSONAddressBook(c.conf.AddressBookFile())
	default:
		return
	}

	var sink addressbook.Sink
	if c.cache != nil {
		sink = c.cache
	}

	c.refresher = network.NewRefresher(c.network, source, sink, c.logger)
	c.network.SetRefresher(c.refresher)
	c.refresher.StartPeriodic(c.conf.NetworkUpdatePeriod)
}

/*******************************************************************************
executable.Client
*******************************************************************************/

// Network ...
func (c *Client) Network() *network.Network {
	return c.network
}

// MirrorNetwork ...
func (c *Client) MirrorNetwork() *network.MirrorNetwork {
	return c.mirror
}

// Pool ...
func (c *Client) Pool() *common.WorkerPool {
	return c.pool
}

// Logger ...
func (c *Client) Logger() *logrus.Entry {
	return c.logger
}

// Metrics ...
func (c *Client) Metrics() *executable.Metrics {
	return c.metrics
}

// Config returns the configuration the client was created from.
func (c *Client) Config() *config.Config {
	return c.conf
}

// Operator ...
func (c *Client) Operator() *executable.Operator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.operator
}

// SetOperator sets the account that pays for transactions and queries, and
// its key.
func (c *Client) SetOperator(id ledger.AccountID, key *ecdsa.PrivateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operator = &executable.Operator{AccountID: id, PrivateKey: key}
}

// MaxAttempts ...
func (c *Client) MaxAttempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxAttempts
}

// SetMaxAttempts ...
func (c *Client) SetMaxAttempts(n int) error {
	if n < 1 {
		return errors.Errorf("max attempts must be at least 1, got %d", n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAttempts = n
	return nil
}

// MinBackoff ...
func (c *Client) MinBackoff() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minBackoff
}

// MaxBackoff ...
func (c *Client) MaxBackoff() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxBackoff
}

// SetBackoff sets the bounds of the delay between retries.
func (c *Client) SetBackoff(minBackoff, maxBackoff time.Duration) error {
	if minBackoff < 0 || minBackoff > maxBackoff {
		return errors.Errorf("min backoff (%s) must be between 0 and max backoff (%s)", minBackoff, maxBackoff)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minBackoff = minBackoff
	c.maxBackoff = maxBackoff
	return nil
}

// RequestTimeout ...
func (c *Client) RequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestTimeout
}

// SetRequestTimeout ...
func (c *Client) SetRequestTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestTimeout = d
}

// GRPCDeadline ...
func (c *Client) GRPCDeadline() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grpcDeadline
}

// SetGRPCDeadline ...
func (c *Client) SetGRPCDeadline(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grpcDeadline = d
}

// MaxQueryPayment ...
func (c *Client) MaxQueryPayment() ledger.Hbar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxQueryPayment
}

// SetMaxQueryPayment ...
func (c *Client) SetMaxQueryPayment(h ledger.Hbar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxQueryPayment = h
}

// AutoValidateChecksums ...
func (c *Client) AutoValidateChecksums() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.autoValidateChecksums
}

// SetAutoValidateChecksums ...
func (c *Client) SetAutoValidateChecksums(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoValidateChecksums = v
}

/*******************************************************************************
Operations
*******************************************************************************/

// Ping checks that a node answers, with a free balance query of its own
// account sent to it alone.
func (c *Client) Ping(ctx context.Context, nodeID ledger.AccountID) error {
	q := query.NewAccountBalanceQuery().SetAccountID(nodeID)
	q.SetNodeAccountIDs([]ledger.AccountID{nodeID})

	_, err := q.Execute(ctx, c)
	if err != nil {
		return errors.Wrapf(err, "pinging node %s", nodeID)
	}
	return nil
}

// PingAll pings every node of the network and returns the first failure.
func (c *Client) PingAll(ctx context.Context) error {
	for _, id := range c.network.AccountIDs() {
		if err := c.Ping(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateNetworkFromAddressBook fetches the address book and installs it in
// the network, waiting for the result.
func (c *Client) UpdateNetworkFromAddressBook(ctx context.Context) error {
	if c.refresher == nil {
		return ErrNoAddressBookSource
	}
	return c.refresher.Refresh(ctx)
}

// Stats is a point-in-time view of the client.
type Stats struct {
	Nodes    []node.Stats               `json:"nodes"`
	Requests executable.MetricsSnapshot `json:"requests"`
}

// GetStats ...
func (c *Client) GetStats() Stats {
	return Stats{
		Nodes:    c.network.GetStats(),
		Requests: c.metrics.Snapshot(),
	}
}

// Close stops the refresher, waits for asynchronous executions and closes
// every channel within the close timeout. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.refresher != nil {
			c.refresher.Stop()
		}

		c.pool.Close()

		ctx, cancel := context.WithTimeout(context.Background(), c.conf.CloseTimeout)
		defer cancel()

		var errs []error
		if c.network != nil {
			errs = append(errs, c.network.Close(ctx))
		}
		if c.mirror != nil {
			errs = append(errs, c.mirror.Close(ctx))
		}
		if c.cache != nil {
			errs = append(errs, c.cache.Close())
		}

		for _, err := range errs {
			if err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}

		c.logger.Debug("Client closed")
	})

	return c.closeErr
}

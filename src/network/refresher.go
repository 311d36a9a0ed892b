package network

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mosaicnetworks/ledgerclient/src/addressbook"
	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/sirupsen/logrus"
)

// Refresh defaults.
const (
	DefaultRefreshTimeout    = time.Minute
	DefaultRefreshMaxRetries = 5
)

// Refresher reloads a Network from an address-book source. Refreshes are
// best-effort: failures are logged and the current node set stays in place.
type Refresher struct {
	network *Network
	source  addressbook.Source
	sink    addressbook.Sink
	logger  *logrus.Entry

	// Timeout bounds one refresh, retries included.
	Timeout time.Duration
	// MaxRetries bounds the retries of one refresh.
	MaxRetries uint64
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration

	running int32

	mu       sync.Mutex
	stopped  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	lastHash string
	count    int
}

// NewRefresher creates a refresher for network. sink may be nil; when set,
// every fetched book is written to it.
func NewRefresher(network *Network, source addressbook.Source, sink addressbook.Sink, logger *logrus.Entry) *Refresher {
	if logger == nil {
		logger = network.logger
	}

	return &Refresher{
		network:         network,
		source:          source,
		sink:            sink,
		logger:          logger.WithField("component", "refresher"),
		Timeout:         DefaultRefreshTimeout,
		MaxRetries:      DefaultRefreshMaxRetries,
		InitialInterval: 500 * time.Millisecond,
		stopCh:          make(chan struct{}),
	}
}

// Refresh fetches the address book, retrying transient failures with
// exponential backoff, and installs it in the network.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var book *addressbook.AddressBook

	op := func() error {
		b, err := r.source.AddressBook(ctx)
		if err != nil {
			return err
		}
		if b == nil || b.Len() == 0 {
			return backoff.Permanent(common.NewClientErr("AddressBook", common.Empty, "refresh"))
		}
		book = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.InitialInterval
	policy.MaxElapsedTime = r.Timeout

	notify := func(err error, d time.Duration) {
		r.logger.WithError(err).WithField("delay", d).Debug("Address book fetch failed, retrying")
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, r.MaxRetries), ctx), notify); err != nil {
		return err
	}

	hash := book.Hex()

	r.mu.Lock()
	unchanged := hash == r.lastHash
	r.count++
	r.mu.Unlock()

	if unchanged {
		r.logger.Debug("Address book unchanged")
		return nil
	}

	if err := r.network.SetAddressBook(book); err != nil {
		return err
	}

	// only an installed book counts as seen
	r.mu.Lock()
	r.lastHash = hash
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"nodes": book.Len(),
		"hash":  hash,
	}).Info("Network updated from address book")

	if r.sink != nil {
		if err := r.sink.Write(book); err != nil {
			r.logger.WithError(err).Warn("Persisting address book")
		}
	}

	return nil
}

// Trigger starts a refresh in the background unless one is already running
// or the refresher is stopped.
func (r *Refresher) Trigger() {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		atomic.StoreInt32(&r.running, 0)
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer atomic.StoreInt32(&r.running, 0)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-r.stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := r.Refresh(ctx); err != nil {
			r.logger.WithError(err).Warn("Refreshing network from address book")
		}
	}()
}

// StartPeriodic triggers a refresh every period until Stop.
func (r *Refresher) StartPeriodic(period time.Duration) {
	if period <= 0 {
		return
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Trigger()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Wait blocks until background work started so far has finished.
func (r *Refresher) Wait() {
	r.wg.Wait()
}

// Count returns the number of successful fetches.
func (r *Refresher) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Stop cancels running refreshes and waits for them. It is idempotent.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.stopCh)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

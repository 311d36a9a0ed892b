package addressbook

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/sirupsen/logrus"
)

const (
	nodePrefix = "node"
	hashKey    = "addressbook_hash"
)

func nodeKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", nodePrefix, index))
}

// BadgerCache keeps the last known address book in a badger database so that
// a client can start from it when the configured network is stale.
type BadgerCache struct {
	l      sync.Mutex
	db     *badger.DB
	path   string
	logger *logrus.Entry
}

// NewBadgerCache opens, or creates, the database at path.
func NewBadgerCache(path string, logger *logrus.Entry) (*BadgerCache, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(logger.WithField("component", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerCache{
		db:     handle,
		path:   path,
		logger: logger,
	}, nil
}

// AddressBook reads the cached book. It implements Source.
func (c *BadgerCache) AddressBook(ctx context.Context) (*AddressBook, error) {
	c.l.Lock()
	defer c.l.Unlock()

	var nodes []*NodeAddress

	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(nodePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			var entry proto.NodeAddress
			if err := proto.Unmarshal(v, &entry); err != nil {
				return err
			}

			nodes = append(nodes, FromProto([]*proto.NodeAddress{&entry}).Nodes...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(nodes) == 0 {
		return nil, common.NewClientErr("BadgerCache", common.Empty, c.path)
	}

	return NewAddressBook(nodes), nil
}

// Write replaces the cached book. It implements Sink.
func (c *BadgerCache) Write(book *AddressBook) error {
	c.l.Lock()
	defer c.l.Unlock()

	return c.db.Update(func(txn *badger.Txn) error {
		var stale [][]byte

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := []byte(nodePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}

		for i, n := range book.Nodes {
			v, err := proto.Marshal(toProto(n))
			if err != nil {
				return err
			}
			if err := txn.Set(nodeKey(i), v); err != nil {
				return err
			}
		}

		return txn.Set([]byte(hashKey), book.Hash())
	})
}

// Close ...
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func toProto(n *NodeAddress) *proto.NodeAddress {
	entry := &proto.NodeAddress{
		NodeAccountID: n.AccountID,
		Description:   n.Description,
	}
	if n.CertHash != "" {
		entry.NodeCertHash = []byte(n.CertHash)
	}
	for _, e := range n.Endpoints {
		entry.ServiceEndpoints = append(entry.ServiceEndpoints, proto.ServiceEndpoint{Address: e.Address, Port: e.Port})
	}
	return entry
}

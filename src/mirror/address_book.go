package mirror

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mosaicnetworks/ledgerclient/src/addressbook"
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultAddressBookFile is the file holding the address book of the
// network.
var DefaultAddressBookFile = ledger.AccountID{Num: 102}

// AddressBookQuery streams the node addresses of the network from a mirror
// node. Transient failures restart the stream on the next mirror node.
type AddressBookQuery struct {
	fileID      ledger.AccountID
	limit       int32
	maxAttempts int
	maxBackoff  time.Duration
}

// NewAddressBookQuery ...
func NewAddressBookQuery() *AddressBookQuery {
	return &AddressBookQuery{
		fileID:      DefaultAddressBookFile,
		maxAttempts: 10,
		maxBackoff:  8 * time.Second,
	}
}

// SetFileID ...
func (q *AddressBookQuery) SetFileID(id ledger.AccountID) *AddressBookQuery {
	q.fileID = id
	return q
}

// SetLimit caps the number of addresses returned. Zero means no limit.
func (q *AddressBookQuery) SetLimit(limit int32) *AddressBookQuery {
	q.limit = limit
	return q
}

// SetMaxAttempts ...
func (q *AddressBookQuery) SetMaxAttempts(n int) *AddressBookQuery {
	q.maxAttempts = n
	return q
}

// SetMaxBackoff ...
func (q *AddressBookQuery) SetMaxBackoff(d time.Duration) *AddressBookQuery {
	q.maxBackoff = d
	return q
}

// Execute returns the complete list of node addresses.
func (q *AddressBookQuery) Execute(ctx context.Context, c Client) ([]*proto.NodeAddress, error) {
	logger := c.Logger().WithFields(logrus.Fields{
		"query":   "AddressBookQuery",
		"file_id": q.fileID.String(),
	})

	var res []*proto.NodeAddress

	op := func() error {
		entries, err := q.stream(ctx, c)
		if err != nil {
			if ctx.Err() != nil || !executable.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		res = entries
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = q.maxBackoff
	policy.MaxElapsedTime = 0

	notify := func(err error, d time.Duration) {
		logger.WithError(err).WithField("delay", d).Debug("Address book stream failed, retrying")
	}

	retries := uint64(0)
	if q.maxAttempts > 1 {
		retries = uint64(q.maxAttempts - 1)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify)
	if err != nil {
		return nil, errors.Wrap(err, "fetching address book from mirror network")
	}

	logger.WithField("nodes", len(res)).Debug("Address book received")

	return res, nil
}

// stream runs one complete call against the next mirror node.
func (q *AddressBookQuery) stream(ctx context.Context, c Client) ([]*proto.NodeAddress, error) {
	nd, err := c.MirrorNetwork().NextNode()
	if err != nil {
		return nil, err
	}

	ch, err := nd.GetOrCreateChannel()
	if err != nil {
		nd.RecordFailure()
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := ch.NewStream(sctx, proto.MethodGetNodes, &proto.AddressBookQuery{
		FileID: q.fileID,
		Limit:  q.limit,
	})
	if err != nil {
		nd.RecordFailure()
		return nil, err
	}

	var res []*proto.NodeAddress
	for {
		entry := new(proto.NodeAddress)
		err := s.Recv(entry)
		if err == io.EOF {
			nd.RecordSuccess()
			return res, nil
		}
		if err != nil {
			nd.RecordFailure()
			return nil, err
		}
		res = append(res, entry)
	}
}

// Source adapts the query to an address-book source bound to c.
func (q *AddressBookQuery) Source(c Client) addressbook.Source {
	return &source{query: q, client: c}
}

type source struct {
	query  *AddressBookQuery
	client Client
}

// AddressBook implements addressbook.Source.
func (s *source) AddressBook(ctx context.Context) (*addressbook.AddressBook, error) {
	entries, err := s.query.Execute(ctx, s.client)
	if err != nil {
		return nil, err
	}
	return addressbook.FromProto(entries), nil
}

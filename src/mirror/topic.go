package mirror

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mosaicnetworks/ledgerclient/src/executable"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TopicMessage is one message received on a topic.
type TopicMessage struct {
	ConsensusTimestamp time.Time `json:"consensus_timestamp"`
	Contents           []byte    `json:"contents"`
	RunningHash        []byte    `json:"running_hash"`
	SequenceNumber     uint64    `json:"sequence_number"`
}

// TopicMessageQuery subscribes to the messages of a topic. A broken stream
// is resumed on the next mirror node after the last message received.
type TopicMessageQuery struct {
	topicID     ledger.AccountID
	startTime   *time.Time
	limit       uint64
	maxAttempts int
	maxBackoff  time.Duration

	completionHandler func()
}

// NewTopicMessageQuery ...
func NewTopicMessageQuery() *TopicMessageQuery {
	return &TopicMessageQuery{
		maxAttempts: 10,
		maxBackoff:  8 * time.Second,
	}
}

// SetTopicID ...
func (q *TopicMessageQuery) SetTopicID(id ledger.AccountID) *TopicMessageQuery {
	q.topicID = id
	return q
}

// SetStartTime asks for messages from t on.
func (q *TopicMessageQuery) SetStartTime(t time.Time) *TopicMessageQuery {
	q.startTime = &t
	return q
}

// SetLimit caps the number of messages. Zero means no limit.
func (q *TopicMessageQuery) SetLimit(limit uint64) *TopicMessageQuery {
	q.limit = limit
	return q
}

// SetMaxAttempts bounds the consecutive failed subscriptions.
func (q *TopicMessageQuery) SetMaxAttempts(n int) *TopicMessageQuery {
	q.maxAttempts = n
	return q
}

// SetMaxBackoff ...
func (q *TopicMessageQuery) SetMaxBackoff(d time.Duration) *TopicMessageQuery {
	q.maxBackoff = d
	return q
}

// SetCompletionHandler sets a function called when the mirror node ends the
// stream, which happens once the limit is reached.
func (q *TopicMessageQuery) SetCompletionHandler(f func()) *TopicMessageQuery {
	q.completionHandler = f
	return q
}

// Subscribe starts the subscription. onNext receives the messages in order;
// onError receives the error that ends the subscription, if any. Neither is
// called after Unsubscribe.
func (q *TopicMessageQuery) Subscribe(ctx context.Context, c Client, onNext func(TopicMessage), onError func(error)) (*SubscriptionHandle, error) {
	if q.topicID.IsZero() {
		return nil, errors.New("topic id is required")
	}
	if onNext == nil {
		return nil, errors.New("onNext is required")
	}

	ctx, cancel := context.WithCancel(ctx)

	h := &SubscriptionHandle{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = q.maxBackoff
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	s := &subscription{
		query:   q,
		client:  c,
		ctx:     ctx,
		handle:  h,
		onNext:  onNext,
		onError: onError,
		policy:  policy,
		start:   q.startTime,
		logger: c.Logger().WithFields(logrus.Fields{
			"query":        "TopicMessageQuery",
			"topic_id":     q.topicID.String(),
			"subscription": h.id,
		}),
	}

	go s.run()

	return h, nil
}

// SubscriptionHandle controls a running subscription.
type SubscriptionHandle struct {
	id     string
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	finished bool
	timer    *time.Timer
	done     chan struct{}
}

// ID ...
func (h *SubscriptionHandle) ID() string {
	return h.id
}

// Done is closed when the subscription has ended, for whatever reason.
func (h *SubscriptionHandle) Done() <-chan struct{} {
	return h.done
}

// Unsubscribe ends the subscription. Pending resubscriptions are dropped and
// no callback is started afterwards. It is idempotent.
func (h *SubscriptionHandle) Unsubscribe() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	resumePending := h.timer != nil && h.timer.Stop()
	h.mu.Unlock()

	h.cancel()

	if resumePending {
		h.finish()
	}
}

func (h *SubscriptionHandle) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// after schedules fn unless the subscription was stopped.
func (h *SubscriptionHandle) after(d time.Duration, fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.timer = time.AfterFunc(d, fn)
	return true
}

func (h *SubscriptionHandle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.finished {
		h.finished = true
		close(h.done)
	}
}

type subscription struct {
	query   *TopicMessageQuery
	client  Client
	ctx     context.Context
	handle  *SubscriptionHandle
	onNext  func(TopicMessage)
	onError func(error)
	policy  *backoff.ExponentialBackOff
	logger  *logrus.Entry

	attempt  int
	start    *time.Time
	received uint64
}

// run streams from one mirror node until the stream ends.
func (s *subscription) run() {
	err := s.stream()

	switch {
	case err == nil:
		s.logger.Debug("Subscription complete")
		if f := s.query.completionHandler; f != nil && !s.handle.isStopped() {
			f()
		}
	case s.ctx.Err() != nil:
		s.logger.Debug("Unsubscribed")
	case shouldResubscribe(err) && s.attempt < s.query.maxAttempts:
		delay := s.policy.NextBackOff()
		s.logger.WithError(err).WithFields(logrus.Fields{
			"attempt": s.attempt,
			"delay":   delay,
		}).Debug("Subscription broken, resubscribing")

		if s.handle.after(delay, s.run) {
			return
		}
	default:
		s.logger.WithError(err).Warn("Subscription failed")
		if s.onError != nil && !s.handle.isStopped() {
			s.onError(err)
		}
	}

	s.handle.cancel()
	s.handle.finish()
}

func (s *subscription) stream() error {
	s.attempt++

	nd, err := s.client.MirrorNetwork().NextNode()
	if err != nil {
		return err
	}

	ch, err := nd.GetOrCreateChannel()
	if err != nil {
		nd.RecordFailure()
		return err
	}

	req := &proto.TopicQuery{TopicID: s.query.topicID}
	if s.start != nil {
		ts := proto.NewTimestamp(*s.start)
		req.ConsensusStartTime = &ts
	}
	if s.query.limit > 0 {
		req.Limit = s.query.limit - s.received
	}

	stream, err := ch.NewStream(s.ctx, proto.MethodSubscribeTopic, req)
	if err != nil {
		nd.RecordFailure()
		return err
	}

	for {
		msg := new(proto.TopicMessage)
		err := stream.Recv(msg)
		if err == io.EOF {
			nd.RecordSuccess()
			return nil
		}
		if err != nil {
			if s.ctx.Err() == nil {
				nd.RecordFailure()
			}
			return err
		}

		s.attempt = 0
		s.policy.Reset()
		s.received++

		next := msg.ConsensusTimestamp.Time().Add(time.Nanosecond)
		s.start = &next

		if s.handle.isStopped() {
			return s.ctx.Err()
		}
		s.onNext(TopicMessage{
			ConsensusTimestamp: msg.ConsensusTimestamp.Time(),
			Contents:           msg.Message,
			RunningHash:        msg.RunningHash,
			SequenceNumber:     msg.SequenceNumber,
		})

		if s.query.limit > 0 && s.received >= s.query.limit {
			return nil
		}
	}
}

// shouldResubscribe reports whether a broken stream is worth resuming.
func shouldResubscribe(err error) bool {
	if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
		return true
	}
	return executable.IsTransient(err)
}

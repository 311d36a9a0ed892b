package net

import (
	"context"
	"io"
	"sync"

	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InmemHandler serves one unary method on encoded messages.
type InmemHandler func(ctx context.Context, req []byte) ([]byte, error)

// InmemStreamHandler serves one server-streaming method on encoded messages.
type InmemStreamHandler func(ctx context.Context, req []byte, send func([]byte) error) error

// InmemUnary adapts a typed handler.
func InmemUnary[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) InmemHandler {
	return func(ctx context.Context, data []byte) ([]byte, error) {
		in := new(Req)
		if err := proto.Unmarshal(data, in); err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(out)
	}
}

// InmemServerStream adapts a typed streaming handler.
func InmemServerStream[Req any, Resp any](fn func(ctx context.Context, req *Req, send func(*Resp) error) error) InmemStreamHandler {
	return func(ctx context.Context, data []byte, send func([]byte) error) error {
		in := new(Req)
		if err := proto.Unmarshal(data, in); err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		return fn(ctx, in, func(m *Resp) error {
			b, err := proto.Marshal(m)
			if err != nil {
				return err
			}
			return send(b)
		})
	}
}

// InmemChannel implements the Channel interface, to allow the client to be
// tested in-memory without going over a network. Requests and responses go
// through the codec so handlers see exactly what a remote node would.
type InmemChannel struct {
	sync.RWMutex
	address    string
	handlers   map[string]InmemHandler
	streams    map[string]InmemStreamHandler
	connectErr error
	connects   int
	calls      map[string]int
	closed     bool
}

// NewInmemChannel returns a channel with no handlers. Calls to unknown methods
// fail with codes.Unimplemented.
func NewInmemChannel(address string) *InmemChannel {
	return &InmemChannel{
		address:  address,
		handlers: make(map[string]InmemHandler),
		streams:  make(map[string]InmemStreamHandler),
		calls:    make(map[string]int),
	}
}

// Handle registers a unary handler.
func (i *InmemChannel) Handle(method string, h InmemHandler) *InmemChannel {
	i.Lock()
	defer i.Unlock()
	i.handlers[method] = h
	return i
}

// HandleStream registers a streaming handler.
func (i *InmemChannel) HandleStream(method string, h InmemStreamHandler) *InmemChannel {
	i.Lock()
	defer i.Unlock()
	i.streams[method] = h
	return i
}

// SetConnectError makes Connect fail with err until it is reset with nil.
func (i *InmemChannel) SetConnectError(err error) {
	i.Lock()
	defer i.Unlock()
	i.connectErr = err
}

// Calls returns the number of calls made to method, connected or not.
func (i *InmemChannel) Calls(method string) int {
	i.RLock()
	defer i.RUnlock()
	return i.calls[method]
}

// Connects returns the number of Connect calls.
func (i *InmemChannel) Connects() int {
	i.RLock()
	defer i.RUnlock()
	return i.connects
}

// Connect implements Channel.
func (i *InmemChannel) Connect(ctx context.Context) error {
	i.Lock()
	i.connects++
	err := i.connectErr
	closed := i.closed
	i.Unlock()

	if closed {
		return ErrChannelClosed
	}
	if err != nil {
		return err
	}
	return ctx.Err()
}

// Invoke implements Channel.
func (i *InmemChannel) Invoke(ctx context.Context, method string, req interface{}, resp interface{}) error {
	i.Lock()
	i.calls[method]++
	h, ok := i.handlers[method]
	closed := i.closed
	i.Unlock()

	if closed {
		return status.Error(codes.Canceled, ErrChannelClosed.Error())
	}
	if !ok {
		return status.Errorf(codes.Unimplemented, "unknown method %s on %s", method, i.address)
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}

	type result struct {
		data []byte
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		out, err := h(ctx, data)
		resCh <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	case res := <-resCh:
		if res.err != nil {
			return res.err
		}
		if err := proto.Unmarshal(res.data, resp); err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		return nil
	}
}

// NewStream implements Channel.
func (i *InmemChannel) NewStream(ctx context.Context, method string, req interface{}) (Stream, error) {
	i.Lock()
	i.calls[method]++
	h, ok := i.streams[method]
	closed := i.closed
	i.Unlock()

	if closed {
		return nil, status.Error(codes.Canceled, ErrChannelClosed.Error())
	}
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown stream %s on %s", method, i.address)
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	s := &inmemStream{
		ctx:    ctx,
		msgCh:  make(chan []byte),
		doneCh: make(chan struct{}),
	}

	go func() {
		s.err = h(ctx, data, func(b []byte) error {
			select {
			case s.msgCh <- b:
				return nil
			case <-ctx.Done():
				return status.FromContextError(ctx.Err()).Err()
			}
		})
		close(s.doneCh)
	}()

	return s, nil
}

// State implements Channel.
func (i *InmemChannel) State() string {
	i.RLock()
	defer i.RUnlock()
	switch {
	case i.closed:
		return "SHUTDOWN"
	case i.connectErr != nil:
		return "TRANSIENT_FAILURE"
	default:
		return "READY"
	}
}

// Close implements Channel.
func (i *InmemChannel) Close() error {
	i.Lock()
	defer i.Unlock()
	i.closed = true
	return nil
}

func (i *InmemChannel) reopen() {
	i.Lock()
	defer i.Unlock()
	i.closed = false
}

// IsClosed ...
func (i *InmemChannel) IsClosed() bool {
	i.RLock()
	defer i.RUnlock()
	return i.closed
}

type inmemStream struct {
	ctx    context.Context
	msgCh  chan []byte
	doneCh chan struct{}
	err    error
}

func (s *inmemStream) Recv(m interface{}) error {
	select {
	case b := <-s.msgCh:
		if err := proto.Unmarshal(b, m); err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		return nil
	case <-s.doneCh:
		if s.err != nil {
			return s.err
		}
		return io.EOF
	case <-s.ctx.Done():
		return status.FromContextError(s.ctx.Err()).Err()
	}
}

// InmemNetwork maps addresses to in-memory channels and hands them out as a
// Dialer.
type InmemNetwork struct {
	sync.Mutex
	channels map[string]*InmemChannel
}

// NewInmemNetwork ...
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{channels: make(map[string]*InmemChannel)}
}

// Channel returns the channel for address, creating it if needed.
func (n *InmemNetwork) Channel(address string) *InmemChannel {
	n.Lock()
	defer n.Unlock()
	c, ok := n.channels[address]
	if !ok {
		c = NewInmemChannel(address)
		n.channels[address] = c
	}
	c.reopen()
	return c
}

// Dialer ...
func (n *InmemNetwork) Dialer() Dialer {
	return func(address string) (Channel, error) {
		return n.Channel(address), nil
	}
}

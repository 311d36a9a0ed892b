package net

import (
	"context"
	"errors"
)

var (
	// ErrChannelClosed is returned when a call is made on a closed channel.
	ErrChannelClosed = errors.New("channel closed")
)

// Channel is a connection to one node endpoint.
type Channel interface {
	// Connect blocks until the channel is ready to carry calls, or until ctx
	// is done.
	Connect(ctx context.Context) error

	// Invoke makes a unary call.
	Invoke(ctx context.Context, method string, req interface{}, resp interface{}) error

	// NewStream sends req and returns the stream of responses of a
	// server-streaming call.
	NewStream(ctx context.Context, method string, req interface{}) (Stream, error)

	// State describes the connectivity of the channel.
	State() string

	// Close permanently closes the channel.
	Close() error
}

// Stream is the receiving side of a server-streaming call. Recv returns io.EOF
// once the server has finished.
type Stream interface {
	Recv(m interface{}) error
}

// Dialer creates the channel for an address. Channels are created lazily and
// may not be connected yet.
type Dialer func(address string) (Channel, error)

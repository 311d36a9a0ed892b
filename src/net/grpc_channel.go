package net

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// DefaultKeepAlive is the interval of keepalive pings on idle channels.
const DefaultKeepAlive = 10 * time.Second

// CertVerifier decides whether the certificate chain presented by a node is
// acceptable.
type CertVerifier func(rawCerts [][]byte) bool

// GRPCOptions configures GRPCChannel.
type GRPCOptions struct {
	// TLS enables transport security.
	TLS bool

	// Verifier, when set with TLS, replaces the usual chain verification.
	Verifier CertVerifier

	// KeepAlive is the keepalive ping interval. Zero means DefaultKeepAlive.
	KeepAlive time.Duration

	// DialOptions are appended to the options built from the fields above.
	DialOptions []grpc.DialOption
}

// GRPCChannel implements Channel over a grpc.ClientConn. All calls use the
// msgpack codec.
type GRPCChannel struct {
	address string
	conn    *grpc.ClientConn
	logger  *logrus.Entry
}

// NewGRPCChannel creates the client connection. No connection is attempted
// until Connect or the first call.
func NewGRPCChannel(address string, opts GRPCOptions, logger *logrus.Entry) (*GRPCChannel, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	keepAlive := opts.KeepAlive
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}

	dialOpts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                keepAlive,
			Timeout:             keepAlive,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(proto.Codec{})),
	}

	if opts.TLS {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig(opts.Verifier))))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating channel to %s: %v", address, err)
	}

	return &GRPCChannel{
		address: address,
		conn:    conn,
		logger:  logger.WithField("address", address),
	}, nil
}

// GRPCDialer returns a Dialer producing GRPCChannels with the same options.
func GRPCDialer(opts GRPCOptions, logger *logrus.Entry) Dialer {
	return func(address string) (Channel, error) {
		return NewGRPCChannel(address, opts, logger)
	}
}

func tlsConfig(verifier CertVerifier) *tls.Config {
	if verifier == nil {
		return &tls.Config{}
	}

	// Node certificates are self-signed and pinned by hash, so the chain is
	// checked by the verifier alone.
	return &tls.Config{
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if !verifier(rawCerts) {
				return fmt.Errorf("node certificate rejected")
			}
			return nil
		},
	}
}

// Connect implements Channel. It drives the connection out of IDLE and waits
// for READY.
func (c *GRPCChannel) Connect(ctx context.Context) error {
	for {
		state := c.conn.GetState()

		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return ErrChannelClosed
		case connectivity.Idle:
			c.conn.Connect()
		}

		if !c.conn.WaitForStateChange(ctx, state) {
			c.logger.WithField("state", state).Debug("Channel not ready before deadline")
			return fmt.Errorf("connecting to %s: %v (state %s)", c.address, ctx.Err(), state)
		}
	}
}

// Invoke implements Channel.
func (c *GRPCChannel) Invoke(ctx context.Context, method string, req interface{}, resp interface{}) error {
	return c.conn.Invoke(ctx, method, req, resp)
}

// NewStream implements Channel.
func (c *GRPCChannel) NewStream(ctx context.Context, method string, req interface{}) (Stream, error) {
	desc := &grpc.StreamDesc{ServerStreams: true}

	cs, err := c.conn.NewStream(ctx, desc, method)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}

	return &grpcStream{cs: cs}, nil
}

// State implements Channel.
func (c *GRPCChannel) State() string {
	return c.conn.GetState().String()
}

// Close implements Channel.
func (c *GRPCChannel) Close() error {
	return c.conn.Close()
}

type grpcStream struct {
	cs grpc.ClientStream
}

func (s *grpcStream) Recv(m interface{}) error {
	return s.cs.RecvMsg(m)
}

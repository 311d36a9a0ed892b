package net

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerclient/src/common"
	"github.com/mosaicnetworks/ledgerclient/src/ledger"
	"github.com/mosaicnetworks/ledgerclient/src/proto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func balanceHandler(ctx context.Context, q *proto.Query) (*proto.Response, error) {
	return &proto.Response{
		AccountBalance: &proto.AccountBalanceResponse{
			AccountID: q.AccountBalance.AccountID,
			Balance:   42,
		},
	}, nil
}

func topicHandler(ctx context.Context, q *proto.TopicQuery, send func(*proto.TopicMessage) error) error {
	for i := uint64(1); i <= q.Limit; i++ {
		if err := send(&proto.TopicMessage{SequenceNumber: i, Message: []byte("hello")}); err != nil {
			return err
		}
	}
	return nil
}

func startBufconnServer(t *testing.T, methods ...proto.Method) *bufconn.Listener {
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.ForceServerCodec(proto.Codec{}))
	require.NoError(t, proto.RegisterMethods(server, methods...))

	go server.Serve(lis)
	t.Cleanup(server.Stop)

	return lis
}

func bufconnChannel(t *testing.T, lis *bufconn.Listener) *GRPCChannel {
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	ch, err := NewGRPCChannel("passthrough:///bufnet",
		GRPCOptions{DialOptions: []grpc.DialOption{dialer}},
		common.NewTestEntry(t, logrus.DebugLevel))
	require.NoError(t, err)
	t.Cleanup(func() { ch.Close() })

	return ch
}

func TestGRPCChannelUnary(t *testing.T) {
	lis := startBufconnServer(t,
		proto.Unary(proto.MethodGetAccountBalance, balanceHandler),
	)
	ch := bufconnChannel(t, lis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ch.Connect(ctx))
	assert.Equal(t, "READY", ch.State())

	req := &proto.Query{AccountBalance: &proto.AccountBalanceQuery{AccountID: ledger.NewAccountID(7)}}
	var resp proto.Response
	require.NoError(t, ch.Invoke(ctx, proto.MethodGetAccountBalance, req, &resp))

	require.NotNil(t, resp.AccountBalance)
	assert.Equal(t, uint64(42), resp.AccountBalance.Balance)
	assert.Equal(t, ledger.NewAccountID(7), resp.AccountBalance.AccountID)

	err := ch.Invoke(ctx, proto.MethodGetAccountInfo, req, &resp)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestGRPCChannelStream(t *testing.T) {
	lis := startBufconnServer(t,
		proto.ServerStream(proto.MethodSubscribeTopic, topicHandler),
	)
	ch := bufconnChannel(t, lis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := ch.NewStream(ctx, proto.MethodSubscribeTopic, &proto.TopicQuery{Limit: 3})
	require.NoError(t, err)

	var seqs []uint64
	for {
		var m proto.TopicMessage
		err := stream.Recv(&m)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seqs = append(seqs, m.SequenceNumber)
	}

	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestGRPCChannelConnectTimeout(t *testing.T) {
	// Nothing listens on this port
	ch, err := NewGRPCChannel("127.0.0.1:1", GRPCOptions{}, common.NewTestEntry(t, logrus.DebugLevel))
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	assert.Error(t, ch.Connect(ctx))
}

func TestInmemChannel(t *testing.T) {
	ch := NewInmemChannel("node0").
		Handle(proto.MethodGetAccountBalance, InmemUnary(balanceHandler)).
		HandleStream(proto.MethodSubscribeTopic, InmemServerStream(topicHandler))

	ctx := context.Background()
	require.NoError(t, ch.Connect(ctx))

	req := &proto.Query{AccountBalance: &proto.AccountBalanceQuery{AccountID: ledger.NewAccountID(9)}}
	var resp proto.Response
	require.NoError(t, ch.Invoke(ctx, proto.MethodGetAccountBalance, req, &resp))
	assert.Equal(t, uint64(42), resp.AccountBalance.Balance)
	assert.Equal(t, 1, ch.Calls(proto.MethodGetAccountBalance))

	err := ch.Invoke(ctx, proto.MethodGetAccountInfo, req, &resp)
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	stream, err := ch.NewStream(ctx, proto.MethodSubscribeTopic, &proto.TopicQuery{Limit: 2})
	require.NoError(t, err)
	var m proto.TopicMessage
	require.NoError(t, stream.Recv(&m))
	require.NoError(t, stream.Recv(&m))
	assert.Equal(t, uint64(2), m.SequenceNumber)
	assert.Equal(t, io.EOF, stream.Recv(&m))

	ch.SetConnectError(status.Error(codes.Unavailable, "down"))
	assert.Error(t, ch.Connect(ctx))
	assert.Equal(t, "TRANSIENT_FAILURE", ch.State())

	require.NoError(t, ch.Close())
	assert.Equal(t, ErrChannelClosed, ch.Connect(ctx))
}

func TestInmemChannelDeadline(t *testing.T) {
	ch := NewInmemChannel("slow").Handle(proto.MethodGetAccountBalance,
		InmemUnary(func(ctx context.Context, q *proto.Query) (*proto.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var resp proto.Response
	err := ch.Invoke(ctx, proto.MethodGetAccountBalance, &proto.Query{}, &resp)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestInmemNetworkDialer(t *testing.T) {
	n := NewInmemNetwork()
	n.Channel("a").Handle(proto.MethodGetAccountBalance, InmemUnary(balanceHandler))

	c, err := n.Dialer()("a")
	require.NoError(t, err)
	c.Close()

	// redialing a closed address keeps its handlers
	c, err = n.Dialer()("a")
	require.NoError(t, err)
	var resp proto.Response
	req := &proto.Query{AccountBalance: &proto.AccountBalanceQuery{}}
	require.NoError(t, c.Invoke(context.Background(), proto.MethodGetAccountBalance, req, &resp))
}

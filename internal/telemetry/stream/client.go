package stream

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client receives lines from one Subscribe stream.
type Client struct {
	conn   *grpc.ClientConn
	stream grpc.ServerStreamingClient[wrapperspb.StringValue]
	cancel context.CancelFunc
}

// Dial connects to target and subscribes to lines starting with prefix. With
// no options the connection is plaintext.
func Dial(ctx context.Context, target, prefix string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("stream: connect %s: %w", target, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cs, err := conn.NewStream(ctx, &serviceDesc.Streams[0], subscribeMethod)
	if err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("stream: subscribe: %w", err)
	}
	stream := &grpc.GenericClientStream[wrapperspb.StringValue, wrapperspb.StringValue]{ClientStream: cs}
	if err := stream.SendMsg(wrapperspb.String(prefix)); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("stream: send prefix: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		conn.Close()
		return nil, fmt.Errorf("stream: close send: %w", err)
	}
	return &Client{conn: conn, stream: stream, cancel: cancel}, nil
}

// Recv blocks for the next line. It returns io.EOF when the server ends the
// stream.
func (c *Client) Recv() (string, error) {
	m, err := c.stream.Recv()
	if err != nil {
		return "", err
	}
	return m.GetValue(), nil
}

// Close cancels the stream and closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close()
}

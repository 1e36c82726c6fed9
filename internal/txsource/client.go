// Package txsource wraps the upstream transaction feed: a streaming
// gRPC subscription authenticated via a static bearer token, reconnecting
// with exponential backoff on any drop. No .proto stubs are vendored
// into this module — the wire schema belongs to the external provider —
// so frames cross the wire as raw bytes via a registered passthrough
// codec and are decoded into domain.RawTransaction with msgpack.
package txsource

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"github.com/rlaau/swapsentry/shared/domain"
)

const subscribeMethod = "/txsource.TransactionFeed/Subscribe"
const codecSubtype = "raw"

func init() {
	encoding.RegisterCodec(rawBytesCodec{})
}

// rawBytesCodec passes a single []byte field through untouched, since
// there is no local .proto definition for the upstream message shape.
type rawBytesCodec struct{}

func (rawBytesCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("txsource: codec expects *[]byte, got %T", v)
	}
	return *b, nil
}

func (rawBytesCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("txsource: codec expects *[]byte, got %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawBytesCodec) Name() string { return codecSubtype }

// Client subscribes to the upstream feed and decodes pushed frames.
type Client struct {
	endpoint string
	token    string
	log      *zap.Logger
}

func New(endpoint, token string, log *zap.Logger) *Client {
	return &Client{endpoint: endpoint, token: token, log: log}
}

// Subscribe blocks until ctx is cancelled, pushing decoded transactions
// to out. A dropped stream reconnects with exponential backoff instead
// of returning an error, since a transient upstream outage is not fatal
// to the pipeline.
func (c *Client) Subscribe(ctx context.Context, out chan<- domain.RawTransaction) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.runOnce(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			bo.Reset()
			continue
		}
		delay := bo.NextBackOff()
		c.log.Warn("txsource: stream dropped, reconnecting", zap.Error(err), zap.Duration("backoff", delay))
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (c *Client) runOnce(ctx context.Context, out chan<- domain.RawTransaction) error {
	conn, err := grpc.NewClient(c.endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecSubtype)),
	)
	if err != nil {
		return fmt.Errorf("txsource: dial: %w", err)
	}
	defer conn.Close()

	callCtx := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	stream, err := conn.NewStream(callCtx, &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}, subscribeMethod)
	if err != nil {
		return fmt.Errorf("txsource: open stream: %w", err)
	}

	for {
		var frame []byte
		if err := stream.RecvMsg(&frame); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("txsource: recv: %w", err)
		}

		var tx domain.RawTransaction
		if err := msgpack.Unmarshal(frame, &tx); err != nil {
			c.log.Warn("txsource: dropping unparseable frame", zap.Error(err))
			continue
		}
		select {
		case out <- tx:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

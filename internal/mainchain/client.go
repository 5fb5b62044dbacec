// Package mainchain wires the sidechain node to the opaque mainchain
// validator service: a lazily-dialed, concurrency-limited gRPC
// connection, and a task that backfills mainchain headers and BMM
// commitments into the archive.
package mainchain

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/thunder-project/thunder/internal/hash"
)

// HeaderInfoEntry is one entry of a get_block_header_infos response.
type HeaderInfoEntry struct {
	BlockHash     hash.Hash
	PrevBlockHash hash.Hash
	Height        uint32
}

// ChainInfo is the response shape of get_chain_info.
type ChainInfo struct {
	Network string
}

// ValidatorClient is the mainchain validator's request surface. Its wire
// protocol is out of scope; this is the Go-side contract the sync task
// depends on, satisfied in production by a generated client over the
// same *grpc.ClientConn that Client dials.
type ValidatorClient interface {
	GetChainTip(ctx context.Context) (hash.Hash, error)
	GetChainInfo(ctx context.Context) (ChainInfo, error)
	GetBlockHeaderInfos(ctx context.Context, tip hash.Hash, count uint32) ([]HeaderInfoEntry, error)
	GetBMMHStarCommitments(ctx context.Context, tip hash.Hash, count uint32) ([]Commitment, error)
}

// Commitment is one entry of a get_bmm_hstar_commitments response.
type Commitment struct {
	BlockHash hash.Hash
	HStar     []byte
}

// concurrencyLimitInterceptor bounds the number of in-flight unary calls on
// a connection, standing in for a server-enforced concurrency_limit since
// the upstream service's own limiting behavior is opaque to us.
func concurrencyLimitInterceptor(limit int) grpc.UnaryClientInterceptor {
	sem := make(chan struct{}, limit)
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-sem }()
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Client owns the connection to the mainchain validator service. Dialing is
// lazy: grpc.DialContext without WithBlock returns immediately and the
// connection is established (and re-established) in the background as
// calls are made.
type Client struct {
	conn *grpc.ClientConn
	ValidatorClient

	mu      sync.Mutex
	healthy bool
}

// ValidatorFactory builds a ValidatorClient bound to conn. Production
// callers pass the generated service stub's constructor; tests pass a
// fake.
type ValidatorFactory func(conn grpc.ClientConnInterface) ValidatorClient

// DefaultConcurrencyLimit is the per-connection cap on in-flight unary
// calls to the validator service.
const DefaultConcurrencyLimit = 256

// NewClient lazily dials target and wraps the connection with
// newValidator's stub.
func NewClient(target string, concurrencyLimit int, newValidator ValidatorFactory) (*Client, error) {
	conn, err := grpc.DialContext(
		context.Background(),
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDisableRetry(),
		grpc.WithChainUnaryInterceptor(concurrencyLimitInterceptor(concurrencyLimit)),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, ValidatorClient: newValidator(conn)}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// HealthCheck performs the startup probe spec.md §6 calls for: the
// validator must be serving before the node does anything else.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.GetChainInfo(ctx)
	c.mu.Lock()
	c.healthy = err == nil
	c.mu.Unlock()
	return err
}

// Healthy reports the result of the most recent HealthCheck call.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

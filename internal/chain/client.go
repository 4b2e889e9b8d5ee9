package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"approvalScope/internal/model"
)

const defaultCallTimeout = 15 * time.Second

// Observer receives the latency and outcome of each RPC call.
type Observer interface {
	ObserveCall(target, method string, took time.Duration, err error)
}

// Client wraps go-ethereum RPC and applies a timeout to every call.
type Client struct {
	rpcClient   *rpc.Client
	ethClient   *ethclient.Client
	callTimeout time.Duration
	observer    Observer
}

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds each RPC round trip.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithObserver records call latency.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts ...Option) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		rpcClient:   rpcClient,
		ethClient:   ethclient.NewClient(rpcClient),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	number, err := c.ethClient.BlockNumber(ctx)
	c.observe("node", "eth_blockNumber", start, err)
	if err != nil {
		return 0, classify("eth_blockNumber", err)
	}
	return number, nil
}

// FilterLogs runs eth_getLogs for the query.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	logs, err := c.ethClient.FilterLogs(ctx, query)
	c.observe("node", "eth_getLogs", start, err)
	if err != nil {
		return nil, classify("eth_getLogs", err)
	}
	return logs, nil
}

// CallContract performs an eth_call for a contract method.
// Transport failures come back as *model.NetworkError, everything else
// (reverts, JSON-RPC errors) is returned unchanged.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	c.observe("node", "eth_call", start, err)
	if err != nil {
		return nil, classify(fmt.Sprintf("eth_call %s", addressOf(msg.To)), err)
	}
	return out, nil
}

func (c *Client) observe(target, method string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveCall(target, method, time.Since(start), err)
	}
}

// classify separates node-side errors from transport failures.
func classify(op string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return err
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode < 500 && httpErr.StatusCode != 429 {
		return err
	}
	return &model.NetworkError{Op: op, Err: err}
}

func addressOf(addr *common.Address) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.Hex()
}

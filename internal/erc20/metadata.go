package erc20

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"approvalScope/internal/model"
	"approvalScope/internal/retry"
)

// CacheStats receives cache hit/miss notifications.
type CacheStats interface {
	CacheLookup(cache string, hit bool)
}

// TokenMetaCache resolves token metadata once per address for the life of the process.
// Concurrent lookups for one address share a single set of reads; failures are not cached.
type TokenMetaCache struct {
	caller ethereum.ContractCaller
	policy retry.Policy
	logger *zap.Logger
	stats  CacheStats

	mu    sync.RWMutex
	data  map[common.Address]model.TokenMeta
	group singleflight.Group
	// fetches counts resolutions that reached the chain.
	fetches int64
}

// NewTokenMetaCache builds a cache bound to a contract caller.
func NewTokenMetaCache(caller ethereum.ContractCaller, policy retry.Policy, stats CacheStats, logger *zap.Logger) *TokenMetaCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenMetaCache{
		caller: caller,
		policy: policy,
		logger: logger,
		stats:  stats,
		data:   make(map[common.Address]model.TokenMeta),
	}
}

// Get returns the cached metadata for address without doing I/O.
func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

// Fetches returns how many times metadata was resolved from chain.
func (c *TokenMetaCache) Fetches() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetches
}

// GetMetadata returns metadata for token, reading it from chain on first use.
func (c *TokenMetaCache) GetMetadata(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if meta, ok := c.Get(token); ok {
		c.lookup(true)
		return meta, nil
	}
	c.lookup(false)

	// The shared read ignores caller cancellation; each caller stops
	// waiting on its own ctx.
	ch := c.group.DoChan(token.Hex(), func() (interface{}, error) {
		if meta, ok := c.Get(token); ok {
			return meta, nil
		}
		meta, err := c.fetch(context.WithoutCancel(ctx), token)
		if err != nil {
			return model.TokenMeta{}, err
		}
		c.mu.Lock()
		c.data[token] = meta
		c.fetches++
		c.mu.Unlock()
		return meta, nil
	})

	select {
	case <-ctx.Done():
		return model.TokenMeta{}, fmt.Errorf("token metadata %s: %w", token.Hex(), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return model.TokenMeta{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("token metadata shared", zap.String("token", token.Hex()))
		}
		return res.Val.(model.TokenMeta), nil
	}
}

func (c *TokenMetaCache) lookup(hit bool) {
	if c.stats != nil {
		c.stats.CacheLookup("token_meta", hit)
	}
}

func (c *TokenMetaCache) fetch(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if c.caller == nil {
		return model.TokenMeta{}, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := TokenABI()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := TokenBytes32ABI()
	if err != nil {
		return model.TokenMeta{}, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	meta := model.TokenMeta{Address: token}

	values, err := c.call(ctx, token, stringABI, "decimals")
	if err != nil {
		return model.TokenMeta{}, contractErr(token, "decimals", err)
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return model.TokenMeta{}, contractErr(token, "decimals", err)
	}
	meta.Decimals = decimals

	meta.Symbol, err = c.readText(ctx, token, stringABI, bytes32ABI, "symbol")
	if err != nil {
		return model.TokenMeta{}, contractErr(token, "symbol", err)
	}
	meta.Name, err = c.readText(ctx, token, stringABI, bytes32ABI, "name")
	if err != nil {
		return model.TokenMeta{}, contractErr(token, "name", err)
	}

	meta.Balance = NewBalanceReader(c.caller, token, c.policy, c.logger)
	return meta, nil
}

// readText tries the string ABI first and falls back to bytes32.
func (c *TokenMetaCache) readText(ctx context.Context, token common.Address, stringABI, bytes32ABI abi.ABI, method string) (string, error) {
	values, err := c.call(ctx, token, stringABI, method)
	if err == nil {
		if text, ok := values[0].(string); ok {
			return text, nil
		}
		err = fmt.Errorf("unexpected %s type %T", method, values[0])
	}
	if model.IsNetwork(err) {
		return "", err
	}

	values, b32Err := c.call(ctx, token, bytes32ABI, method)
	if b32Err != nil {
		c.logger.Debug("bytes32 fallback failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(b32Err))
		return "", err
	}
	text, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("unexpected %s type %T", method, values[0])
	}
	return text, nil
}

func (c *TokenMetaCache) call(ctx context.Context, token common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	return callMethod(ctx, c.caller, c.policy, c.logger, token, parsed, method, args...)
}

func callMethod(ctx context.Context, caller ethereum.ContractCaller, policy retry.Policy, logger *zap.Logger, token common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &token, Data: data}

	var resp []byte
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		resp, err = caller.CallContract(ctx, msg, nil)
		if err != nil && model.IsNetwork(err) {
			logger.Warn("contract call failed", zap.String("token", token.Hex()), zap.String("method", method), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func contractErr(token common.Address, method string, err error) error {
	return &model.ContractCallError{Op: fmt.Sprintf("%s %s", method, token.Hex()), Err: err}
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if v.Sign() < 0 || v.Cmp(big.NewInt(255)) > 0 {
			return 0, fmt.Errorf("decimals out of range: %s", v.String())
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported decimals type %T", value)
	}
}

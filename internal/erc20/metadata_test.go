package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"approvalScope/internal/model"
	"approvalScope/internal/retry"
)

// fakeToken answers ERC20 reads for one contract.
type fakeToken struct {
	mu       sync.Mutex
	decimals *big.Int
	symbol   string
	name     string
	bytes32  bool
	balances map[common.Address]*big.Int
	errs     map[string][]error
	delay    time.Duration
	calls    map[string]int
	// gate holds decimals reads until closed; entered reports one is waiting.
	gate     chan struct{}
	entered  chan struct{}
}

func newFakeToken(decimals int64, symbol, name string) *fakeToken {
	return &fakeToken{
		decimals: big.NewInt(decimals),
		symbol:   symbol,
		name:     name,
		balances: make(map[common.Address]*big.Int),
		errs:     make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// failNext queues errors returned by the next calls to method.
func (f *fakeToken) failNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

func (f *fakeToken) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeToken) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	stringABI, err := TokenABI()
	if err != nil {
		return nil, err
	}
	bytes32ABI, err := TokenBytes32ABI()
	if err != nil {
		return nil, err
	}
	method, err := stringABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.gate != nil && method.Name == "decimals" {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls[method.Name]++
	if queued := f.errs[method.Name]; len(queued) > 0 {
		f.errs[method.Name] = queued[1:]
		f.mu.Unlock()
		return nil, queued[0]
	}
	f.mu.Unlock()

	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals)
	case "symbol", "name":
		text := f.symbol
		if method.Name == "name" {
			text = f.name
		}
		if f.bytes32 {
			var word [32]byte
			copy(word[:], text)
			return bytes32ABI.Methods[method.Name].Outputs.Pack(word)
		}
		return method.Outputs.Pack(text)
	case "balanceOf":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		balance, ok := f.balances[args[0].(common.Address)]
		if !ok {
			balance = big.NewInt(0)
		}
		return method.Outputs.Pack(balance)
	default:
		return nil, fmt.Errorf("unexpected method %s", method.Name)
	}
}

var testPolicy = retry.Policy{MaxRetries: 2, Backoff: time.Millisecond}

func TestTokenMetaCacheResolvesMetadata(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	fake := newFakeToken(18, "DAI", "Dai Stablecoin")
	fake.balances[owner] = big.NewInt(42)

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())
	meta, err := cache.GetMetadata(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, token, meta.Address)
	require.Equal(t, uint8(18), meta.Decimals)
	require.Equal(t, "DAI", meta.Symbol)
	require.Equal(t, "Dai Stablecoin", meta.Name)

	balance, err := meta.Balance.ReadBalance(context.Background(), owner)
	require.NoError(t, err)
	require.Equal(t, int64(42), balance.Int64())

	again, err := cache.GetMetadata(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, meta.Symbol, again.Symbol)
	require.Equal(t, 1, fake.count("decimals"))
	require.Equal(t, int64(1), cache.Fetches())
}

func TestTokenMetaCacheSharesConcurrentLookups(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	fake := newFakeToken(6, "USDC", "USD Coin")
	fake.delay = 20 * time.Millisecond

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			meta, err := cache.GetMetadata(context.Background(), token)
			if err == nil && meta.Symbol != "USDC" {
				err = fmt.Errorf("symbol %q", meta.Symbol)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, fake.count("decimals"))
	require.Equal(t, 1, fake.count("symbol"))
	require.Equal(t, 1, fake.count("name"))
	require.Equal(t, int64(1), cache.Fetches())
}

func TestTokenMetaCacheDoesNotCacheFailures(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	fake := newFakeToken(18, "DAI", "Dai Stablecoin")
	fake.failNext("decimals", errors.New("execution reverted"))

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())

	_, err := cache.GetMetadata(context.Background(), token)
	var callErr *model.ContractCallError
	require.ErrorAs(t, err, &callErr)
	require.Equal(t, model.KindContractCall, model.FailureKind(err))
	_, ok := cache.Get(token)
	require.False(t, ok)

	meta, err := cache.GetMetadata(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "DAI", meta.Symbol)
	require.Equal(t, 2, fake.count("decimals"))
}

func TestTokenMetaCacheRejectsOversizedDecimals(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	fake := newFakeToken(300, "BAD", "Bad Token")

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())
	_, err := cache.GetMetadata(context.Background(), token)
	var callErr *model.ContractCallError
	require.ErrorAs(t, err, &callErr)
	require.Contains(t, err.Error(), "decimals out of range")
}

func TestTokenMetaCacheBytes32Fallback(t *testing.T) {
	token := common.HexToAddress("0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2")
	fake := newFakeToken(18, "MKR", "Maker")
	fake.bytes32 = true

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())
	meta, err := cache.GetMetadata(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "MKR", meta.Symbol)
	require.Equal(t, "Maker", meta.Name)
}

func TestTokenMetaCacheRetriesNetworkErrors(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	fake := newFakeToken(18, "DAI", "Dai Stablecoin")
	fake.failNext("decimals", &model.NetworkError{Op: "eth_call", Err: errors.New("connection reset")})

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())
	meta, err := cache.GetMetadata(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, uint8(18), meta.Decimals)
	require.Equal(t, 2, fake.count("decimals"))
}

func TestTokenMetaCacheNetworkFailureKind(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	fake := newFakeToken(18, "DAI", "Dai Stablecoin")
	netErr := &model.NetworkError{Op: "eth_call", Err: errors.New("connection refused")}
	fake.failNext("symbol", netErr, netErr, netErr)

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())
	_, err := cache.GetMetadata(context.Background(), token)
	require.Error(t, err)
	require.Equal(t, model.KindNetwork, model.FailureKind(err))
	// network failures skip the bytes32 fallback
	require.Equal(t, 3, fake.count("symbol"))
}

type statsRecorder struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (s *statsRecorder) CacheLookup(_ string, hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

func TestTokenMetaCacheReportsLookups(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	stats := &statsRecorder{}
	cache := NewTokenMetaCache(newFakeToken(18, "DAI", "Dai Stablecoin"), testPolicy, stats, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := cache.GetMetadata(context.Background(), token)
		require.NoError(t, err)
	}
	require.Equal(t, 1, stats.misses)
	require.Equal(t, 2, stats.hits)
}

func TestTokenMetaCacheSurvivesCancelledCaller(t *testing.T) {
	token := common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
	fake := newFakeToken(18, "DAI", "Dai Stablecoin")
	fake.gate = make(chan struct{})
	fake.entered = make(chan struct{}, 1)

	cache := NewTokenMetaCache(fake, testPolicy, nil, zap.NewNop())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.GetMetadata(ctxA, token)
		errA <- err
	}()
	<-fake.entered

	type outcome struct {
		meta model.TokenMeta
		err  error
	}
	resB := make(chan outcome, 1)
	go func() {
		meta, err := cache.GetMetadata(context.Background(), token)
		resB <- outcome{meta, err}
	}()

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(fake.gate)

	b := <-resB
	require.NoError(t, b.err)
	require.Equal(t, "DAI", b.meta.Symbol)
	require.Equal(t, 1, fake.count("decimals"))
}

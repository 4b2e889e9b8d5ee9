package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"approvalScope/internal/model"
	"approvalScope/internal/retry"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3/simple/price"
	DefaultTTL     = 5 * time.Minute
	defaultTimeout = 10 * time.Second
	vsCurrency     = "USD"
	maxBodyBytes   = 1 << 20
)

// Observer receives the latency and outcome of each feed request.
type Observer interface {
	ObserveCall(target, method string, took time.Duration, err error)
	CacheLookup(cache string, hit bool)
}

// Config configures the oracle client.
type Config struct {
	BaseURL string
	TTL     time.Duration
	Timeout time.Duration
	Retry   retry.Policy
}

// Oracle resolves USD prices by token name, falling back to symbol.
type Oracle struct {
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client
	policy     retry.Policy
	logger     *zap.Logger
	observer   Observer
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]model.PriceQuote
	group singleflight.Group
}

// NewOracle builds an oracle client. A nil httpClient gets one with cfg.Timeout.
func NewOracle(cfg Config, httpClient *http.Client, observer Observer, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Oracle{
		baseURL:    cfg.BaseURL,
		ttl:        cfg.TTL,
		httpClient: httpClient,
		policy:     cfg.Retry,
		logger:     logger,
		observer:   observer,
		now:        time.Now,
		cache:      make(map[string]model.PriceQuote),
	}
}

// GetPrice returns the USD price of a token. An unlisted token yields an
// invalid NullDecimal and no error; only transport failures return an error.
func (o *Oracle) GetPrice(ctx context.Context, name, symbol string) (decimal.NullDecimal, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	key := name + "|" + symbol

	if quote, ok := o.cached(key); ok {
		o.lookup(true)
		return quote.USDPrice, nil
	}
	o.lookup(false)

	ch := o.group.DoChan(key, func() (interface{}, error) {
		if quote, ok := o.cached(key); ok {
			return quote, nil
		}
		price, cacheable, err := o.resolve(context.WithoutCancel(ctx), name, symbol)
		if err != nil {
			return model.PriceQuote{}, err
		}
		quote := model.PriceQuote{
			Name:      name,
			Symbol:    symbol,
			USDPrice:  price,
			FetchedAt: o.now(),
			TTL:       o.ttl,
		}
		if cacheable {
			o.mu.Lock()
			o.cache[key] = quote
			o.mu.Unlock()
		}
		return quote, nil
	})

	select {
	case <-ctx.Done():
		return decimal.NullDecimal{}, fmt.Errorf("price %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return decimal.NullDecimal{}, res.Err
		}
		return res.Val.(model.PriceQuote).USDPrice, nil
	}
}

func (o *Oracle) cached(key string) (model.PriceQuote, bool) {
	o.mu.RLock()
	quote, ok := o.cache[key]
	o.mu.RUnlock()
	if !ok || quote.Expired(o.now()) {
		return model.PriceQuote{}, false
	}
	return quote, true
}

func (o *Oracle) lookup(hit bool) {
	if o.observer != nil {
		o.observer.CacheLookup("price", hit)
	}
}

// resolve queries by name first, then by symbol. An unknown result is not
// cacheable when any lookup was throttled or hit a feed outage.
func (o *Oracle) resolve(ctx context.Context, name, symbol string) (decimal.NullDecimal, bool, error) {
	cacheable := true
	for _, id := range []string{name, symbol} {
		if id == "" {
			continue
		}
		price, transient, err := o.queryWithRetry(ctx, id)
		if err != nil {
			return decimal.NullDecimal{}, false, err
		}
		if price.Valid {
			return price, true, nil
		}
		if transient {
			cacheable = false
		}
	}
	o.logger.Debug("price unknown", zap.String("name", name), zap.String("symbol", symbol), zap.Bool("cached", cacheable))
	return decimal.NullDecimal{}, cacheable, nil
}

func (o *Oracle) queryWithRetry(ctx context.Context, id string) (decimal.NullDecimal, bool, error) {
	var (
		price     decimal.NullDecimal
		transient bool
	)
	err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		var err error
		price, transient, err = o.query(ctx, id)
		if err != nil {
			o.logger.Warn("price request failed", zap.String("id", id), zap.Error(err))
		}
		return err
	})
	return price, transient, err
}

// query asks the feed for one id. transient reports a 429 or 5xx answer.
func (o *Oracle) query(ctx context.Context, id string) (price decimal.NullDecimal, transient bool, err error) {
	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", vsCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return decimal.NullDecimal{}, false, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if o.observer != nil {
		o.observer.ObserveCall("price_feed", "simple_price", time.Since(start), err)
	}
	if err != nil {
		return decimal.NullDecimal{}, false, &model.NetworkError{Op: "price " + id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		o.logger.Debug("price feed non-success", zap.String("id", id), zap.Int("status", resp.StatusCode))
		transient = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		return decimal.NullDecimal{}, transient, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return decimal.NullDecimal{}, false, &model.NetworkError{Op: "price " + id, Err: err}
	}
	return parsePrice(body, id), false, nil
}

// parsePrice extracts body[id].usd. Anything else is an unknown price.
func parsePrice(body []byte, id string) decimal.NullDecimal {
	var payload map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.NullDecimal{}
	}
	entry, ok := payload[id]
	if !ok {
		return decimal.NullDecimal{}
	}
	usd, ok := entry[strings.ToLower(vsCurrency)]
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: usd, Valid: true}
}

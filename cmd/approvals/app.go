package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"approvalScope/internal/chain"
	"approvalScope/internal/config"
	"approvalScope/internal/erc20"
	"approvalScope/internal/indexer"
	"approvalScope/internal/observability"
	"approvalScope/internal/price"
	"approvalScope/internal/retry"
	"approvalScope/internal/scan"
	"approvalScope/internal/storage"
	"approvalScope/internal/storage/postgres"
)

// app owns the chain handle, caches and sinks for one process.
type app struct {
	chain        *chain.Client
	store        *postgres.Store
	metrics      *observability.Metrics
	orchestrator *scan.Orchestrator
	sink         storage.Storage
}

func newApp(ctx context.Context, cfg config.ScanConfig, logger *zap.Logger) (*app, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	metrics := observability.NewMetrics("")

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL,
		chain.WithCallTimeout(cfg.CallTimeout),
		chain.WithObserver(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	a := &app{chain: chainClient, metrics: metrics}

	var sinks storage.Multi
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.store = store
		if err := store.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, store)
	}
	if len(sinks) > 0 {
		a.sink = sinks
	}

	policy := retry.Policy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff}

	decoder, err := erc20.NewDecoder()
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := indexer.NewFetcher(indexer.FetchConfig{
		FromBlock: cfg.FromBlock,
		ToBlock:   cfg.ToBlock,
		BatchSize: cfg.BatchSize,
		Retry:     policy,
	}, chainClient, logger)

	tokens := erc20.NewTokenMetaCache(chainClient, policy, metrics, logger)

	var prices scan.PriceSource
	if !cfg.NoPrice {
		prices = price.NewOracle(price.Config{
			BaseURL: cfg.PriceURL,
			TTL:     cfg.PriceTTL,
			Timeout: cfg.PriceTimeout,
			Retry:   policy,
		}, nil, metrics, logger)
	}

	a.orchestrator = scan.NewOrchestrator(scan.Config{
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.ScanTimeout,
	}, fetcher, decoder, tokens, prices, metrics, logger)

	return a, nil
}

// Close drops the chain handle and closes sinks. Caches are in memory only.
func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.chain != nil {
		a.chain.Close()
	}
}

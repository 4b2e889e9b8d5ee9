package indexer

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"approvalScope/internal/erc20"
	"approvalScope/internal/retry"
)

// LogSource is the subset of the chain client the fetcher needs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// FetchConfig holds the block window and retry settings.
type FetchConfig struct {
	FromBlock uint64
	// ToBlock is inclusive; 0 means the latest block.
	ToBlock uint64
	// BatchSize splits the window into eth_getLogs calls; 0 issues one query.
	BatchSize uint64
	Retry     retry.Policy
}

// Fetcher queries Approval logs emitted for one owner.
type Fetcher struct {
	cfg    FetchConfig
	source LogSource
	topic  common.Hash
	logger *zap.Logger
}

// NewFetcher builds a Fetcher with its dependencies.
func NewFetcher(cfg FetchConfig, source LogSource, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:    cfg,
		source: source,
		topic:  erc20.ApprovalTopic(),
		logger: logger,
	}
}

// Fetch returns every Approval log whose owner topic is owner, ordered by
// block number then log index. No logs is not an error.
func (f *Fetcher) Fetch(ctx context.Context, owner common.Address) ([]types.Log, error) {
	if f.source == nil {
		return nil, fmt.Errorf("log source is nil")
	}

	ranges, err := f.ranges(ctx)
	if err != nil {
		return nil, err
	}

	topics := [][]common.Hash{{f.topic}, {common.BytesToHash(owner.Bytes())}}
	var out []types.Log
	for _, blockRange := range ranges {
		logs, err := f.filterLogsWithRetry(ctx, blockRange.FilterQuery(topics), owner)
		if err != nil {
			return nil, fmt.Errorf("filter logs %s: %w", blockRange, err)
		}
		for _, log := range logs {
			if log.Removed {
				continue
			}
			out = append(out, log)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})

	f.logger.Debug("fetched approval logs", zap.String("owner", owner.Hex()), zap.Int("logs", len(out)))
	return out, nil
}

// ranges returns the block windows to query. A zero To means latest.
func (f *Fetcher) ranges(ctx context.Context) ([]BlockRange, error) {
	if f.cfg.BatchSize == 0 {
		if f.cfg.ToBlock != 0 && f.cfg.ToBlock < f.cfg.FromBlock {
			return nil, fmt.Errorf("to block must be >= from block")
		}
		return []BlockRange{{From: f.cfg.FromBlock, To: f.cfg.ToBlock}}, nil
	}

	to := f.cfg.ToBlock
	if to == 0 {
		latest, err := f.latestWithRetry(ctx)
		if err != nil {
			return nil, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}
	if to < f.cfg.FromBlock {
		return nil, nil
	}
	return SplitRange(f.cfg.FromBlock, to, f.cfg.BatchSize)
}

func (f *Fetcher) filterLogsWithRetry(ctx context.Context, query ethereum.FilterQuery, owner common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, f.cfg.Retry, func(ctx context.Context) error {
		var err error
		logs, err = f.source.FilterLogs(ctx, query)
		if err != nil {
			f.logger.Warn("filter logs failed", zap.Error(err), zap.String("owner", owner.Hex()), zap.Stringer("from", query.FromBlock))
		}
		return err
	})
	return logs, err
}

func (f *Fetcher) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := retry.Do(ctx, f.cfg.Retry, func(ctx context.Context) error {
		var err error
		latest, err = f.source.BlockNumber(ctx)
		if err != nil {
			f.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	return latest, err
}

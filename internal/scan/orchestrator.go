package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"approvalScope/internal/exposure"
	"approvalScope/internal/model"
)

const DefaultConcurrency = 8

// LogFetcher returns the Approval logs granted by owner in discovery order.
type LogFetcher interface {
	Fetch(ctx context.Context, owner common.Address) ([]types.Log, error)
}

// LogDecoder decodes one raw Approval log.
type LogDecoder interface {
	Decode(log types.Log) (model.ApprovalEvent, error)
}

// MetadataSource resolves token metadata.
type MetadataSource interface {
	GetMetadata(ctx context.Context, token common.Address) (model.TokenMeta, error)
}

// PriceSource resolves a USD price; an invalid result means unknown.
type PriceSource interface {
	GetPrice(ctx context.Context, name, symbol string) (decimal.NullDecimal, error)
}

// Recorder receives scan outcomes.
type Recorder interface {
	OwnerScanned(outcome string)
	ItemFailed(kind string)
	ScanCompleted(owners int, took time.Duration)
}

// Config controls scan behavior.
type Config struct {
	// Concurrency is the default limit when Scan is called with limit <= 0.
	Concurrency int
	// Timeout is the scan-level deadline; 0 waits for everything.
	Timeout time.Duration
}

// Orchestrator drives fetch, decode and enrichment for a set of owners.
type Orchestrator struct {
	cfg      Config
	fetcher  LogFetcher
	decoder  LogDecoder
	metadata MetadataSource
	prices   PriceSource
	recorder Recorder
	logger   *zap.Logger
}

// NewOrchestrator builds an Orchestrator. prices and recorder may be nil.
func NewOrchestrator(cfg Config, fetcher LogFetcher, decoder LogDecoder, metadata MetadataSource, prices PriceSource, recorder Recorder, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		decoder:  decoder,
		metadata: metadata,
		prices:   prices,
		recorder: recorder,
		logger:   logger,
	}
}

// Scan returns a result entry for every owner. Owners run concurrently and
// every external call across all owners shares one budget of limit slots.
// When the scan deadline passes, owners and approvals still pending are
// reported with timeout markers; in-flight calls are left to finish on
// their own timeouts.
func (o *Orchestrator) Scan(ctx context.Context, owners []common.Address, limit int) model.ScanResult {
	if limit <= 0 {
		limit = o.cfg.Concurrency
	}
	start := time.Now()

	waitCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	o.logger.Info("scan start", zap.Int("owners", len(owners)), zap.Int("concurrency", limit), zap.Duration("timeout", o.cfg.Timeout))

	calls := NewPool(limit)
	results := newCollector()
	batch := NewPool(limit).Batch()
	for _, owner := range owners {
		owner := owner
		err := batch.Go(waitCtx, func() {
			results.put(owner, o.scanOwner(ctx, waitCtx, calls, owner))
		})
		if err != nil {
			break
		}
	}
	// scanOwner stops waiting at the deadline on its own, so owners already
	// started get to report partial results.
	batch.Wait(ctx)

	out := results.seal(owners, pendingErr(waitCtx))
	for _, owner := range out {
		o.recordOwner(owner)
	}
	if o.recorder != nil {
		o.recorder.ScanCompleted(len(owners), time.Since(start))
	}
	o.logger.Info("scan complete", zap.Int("owners", len(out)), zap.Duration("took", time.Since(start)))
	return out
}

// scanOwner runs on work ctx; waitCtx only decides when to stop waiting.
func (o *Orchestrator) scanOwner(ctx, waitCtx context.Context, calls *Pool, owner common.Address) model.OwnerResult {
	ownerHex := owner.Hex()
	log := o.logger.With(zap.String("owner", ownerHex))

	var (
		logs     []types.Log
		fetchErr error
	)
	fetch := calls.Batch()
	if err := fetch.Go(waitCtx, func() { logs, fetchErr = o.fetcher.Fetch(ctx, owner) }); err != nil {
		return model.NewOwnerFailure(ownerHex, pendingErr(waitCtx))
	}
	if !fetch.Wait(waitCtx) {
		return model.NewOwnerFailure(ownerHex, pendingErr(waitCtx))
	}
	if fetchErr != nil {
		log.Warn("owner scan failed", zap.Error(fetchErr))
		return model.NewOwnerFailure(ownerHex, fetchErr)
	}

	result := model.OwnerResult{
		Owner:     ownerHex,
		Exposures: make([]model.ExposureRecord, 0, len(logs)),
		Failures:  []model.ItemFailure{},
	}

	events := make([]model.ApprovalEvent, 0, len(logs))
	for _, raw := range logs {
		event, err := o.decoder.Decode(raw)
		if err != nil {
			log.Warn("skip malformed approval log", zap.Uint64("block", raw.BlockNumber), zap.Uint("log_index", raw.Index), zap.Error(err))
			result.Failures = append(result.Failures, model.ItemFailure{
				Kind:          model.FailureKind(err),
				TokenContract: raw.Address.Hex(),
				BlockNumber:   raw.BlockNumber,
				LogIndex:      raw.Index,
				TxHash:        raw.TxHash.Hex(),
				Error:         err.Error(),
			})
			continue
		}
		events = append(events, event)
	}

	type slot struct {
		record model.ExposureRecord
		err    error
		done   bool
	}
	var mu sync.Mutex
	slots := make([]slot, len(events))

	batch := calls.Batch()
	for i, event := range events {
		i, event := i, event
		err := batch.Go(waitCtx, func() {
			record, err := o.enrich(ctx, event)
			mu.Lock()
			slots[i] = slot{record: record, err: err, done: true}
			mu.Unlock()
		})
		if err != nil {
			break
		}
	}
	batch.Wait(waitCtx)

	mu.Lock()
	defer mu.Unlock()
	for i, s := range slots {
		event := events[i]
		err := s.err
		if !s.done {
			err = pendingErr(waitCtx)
		}
		if err != nil {
			log.Warn("skip approval", zap.String("token", event.TokenContract.Hex()), zap.Uint64("block", event.BlockNumber), zap.Error(err))
			result.Failures = append(result.Failures, model.ItemFailure{
				Kind:          model.FailureKind(err),
				TokenContract: event.TokenContract.Hex(),
				BlockNumber:   event.BlockNumber,
				LogIndex:      event.LogIndex,
				TxHash:        event.TxHash.Hex(),
				Error:         err.Error(),
			})
			continue
		}
		result.Exposures = append(result.Exposures, s.record)
	}
	return result
}

func (o *Orchestrator) enrich(ctx context.Context, event model.ApprovalEvent) (model.ExposureRecord, error) {
	meta, err := o.metadata.GetMetadata(ctx, event.TokenContract)
	if err != nil {
		return model.ExposureRecord{}, fmt.Errorf("token metadata: %w", err)
	}
	if meta.Balance == nil {
		return model.ExposureRecord{}, fmt.Errorf("token %s has no balance reader", event.TokenContract.Hex())
	}

	balance, err := meta.Balance.ReadBalance(ctx, event.Owner)
	if err != nil {
		return model.ExposureRecord{}, fmt.Errorf("read balance: %w", err)
	}

	var price decimal.NullDecimal
	if o.prices != nil {
		price, err = o.prices.GetPrice(ctx, meta.Name, meta.Symbol)
		if err != nil {
			return model.ExposureRecord{}, fmt.Errorf("price: %w", err)
		}
	}

	return exposure.Compute(event, meta, balance, price), nil
}

func (o *Orchestrator) recordOwner(result model.OwnerResult) {
	if o.recorder == nil {
		return
	}
	outcome := "ok"
	if result.Error != nil {
		outcome = result.Error.Kind
	}
	o.recorder.OwnerScanned(outcome)
	for _, failure := range result.Failures {
		o.recorder.ItemFailed(failure.Kind)
	}
}

// pendingErr explains why work that never finished was abandoned.
func pendingErr(waitCtx context.Context) error {
	err := waitCtx.Err()
	switch {
	case err == nil:
		return model.ErrScanTimedOut
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrScanTimedOut
	default:
		return fmt.Errorf("scan cancelled: %w", err)
	}
}

// collector gathers owner results until sealed; later writes are dropped.
type collector struct {
	mu      sync.Mutex
	sealed  bool
	results map[common.Address]model.OwnerResult
}

func newCollector() *collector {
	return &collector{results: make(map[common.Address]model.OwnerResult)}
}

func (c *collector) put(owner common.Address, result model.OwnerResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	c.results[owner] = result
}

// seal stops accepting results and fills in owners that never reported.
func (c *collector) seal(owners []common.Address, pending error) model.ScanResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true

	out := make(model.ScanResult, len(owners))
	for _, owner := range owners {
		result, ok := c.results[owner]
		if !ok {
			result = model.NewOwnerFailure(owner.Hex(), pending)
		}
		out[owner.Hex()] = result
	}
	return out
}

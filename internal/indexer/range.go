package indexer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// BlockRange is an inclusive block window. A zero To leaves the window
// open at the chain head.
type BlockRange struct {
	From uint64
	To   uint64
}

func (r BlockRange) String() string {
	if r.To == 0 {
		return fmt.Sprintf("%d-latest", r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// FilterQuery builds the eth_getLogs query for the window.
func (r BlockRange) FilterQuery(topics [][]common.Hash) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(r.From),
		Topics:    topics,
	}
	if r.To > 0 {
		query.ToBlock = new(big.Int).SetUint64(r.To)
	}
	return query
}

// SplitRange cuts [from, to] into windows of at most batchSize blocks.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, (to-from)/batchSize+1)
	for start := from; ; start += batchSize {
		end := to
		if to-start >= batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			return ranges, nil
		}
	}
}

package erc20

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"approvalScope/internal/model"
)

// Decoder turns raw Approval logs into ApprovalEvents.
type Decoder struct {
	event abi.Event
}

// NewDecoder builds an Approval decoder.
func NewDecoder() (*Decoder, error) {
	parsed, err := ApprovalABI()
	if err != nil {
		return nil, fmt.Errorf("parse approval abi: %w", err)
	}
	return &Decoder{event: parsed.Events["Approval"]}, nil
}

// Decode converts a log into an ApprovalEvent. Layout mismatches return *model.DecodeError.
func (d *Decoder) Decode(log types.Log) (model.ApprovalEvent, error) {
	if len(log.Topics) != 3 {
		return model.ApprovalEvent{}, decodeErr("topics", fmt.Errorf("expected 3 topics, got %d", len(log.Topics)))
	}
	if log.Topics[0] != d.event.ID {
		return model.ApprovalEvent{}, decodeErr("topic0", fmt.Errorf("unexpected signature %s", log.Topics[0].Hex()))
	}
	for i, topic := range log.Topics[1:] {
		if !isAddressWord(topic) {
			return model.ApprovalEvent{}, decodeErr("topics", fmt.Errorf("topic %d is not an address word", i+1))
		}
	}

	var indexed struct {
		Owner   common.Address
		Spender common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.event.Inputs), log.Topics[1:]); err != nil {
		return model.ApprovalEvent{}, decodeErr("parse topics", err)
	}

	if len(log.Data) != 32 {
		return model.ApprovalEvent{}, decodeErr("data", fmt.Errorf("expected 32 bytes, got %d", len(log.Data)))
	}
	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.ApprovalEvent{}, decodeErr("unpack value", err)
	}
	if len(values) != 1 {
		return model.ApprovalEvent{}, decodeErr("unpack value", fmt.Errorf("unexpected approval values: %d", len(values)))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return model.ApprovalEvent{}, decodeErr("unpack value", fmt.Errorf("unexpected value type %T", values[0]))
	}

	return model.ApprovalEvent{
		Owner:         indexed.Owner,
		Spender:       indexed.Spender,
		RawAmount:     amount,
		TokenContract: log.Address,
		BlockNumber:   log.BlockNumber,
		LogIndex:      log.Index,
		TxHash:        log.TxHash,
	}, nil
}

func decodeErr(op string, err error) error {
	return &model.DecodeError{Op: op, Err: err}
}

// isAddressWord reports whether the upper 12 bytes of an indexed address topic are zero.
func isAddressWord(topic common.Hash) bool {
	for _, b := range topic[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return false
		}
	}
	return true
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}


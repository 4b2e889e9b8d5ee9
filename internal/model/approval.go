package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ApprovalEvent is a decoded ERC20 Approval log.
type ApprovalEvent struct {
	Owner         common.Address
	Spender       common.Address
	RawAmount     *big.Int
	TokenContract common.Address
	BlockNumber   uint64
	LogIndex      uint
	TxHash        common.Hash
}

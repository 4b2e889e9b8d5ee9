package model

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader reads an account balance from a single token contract.
type BalanceReader interface {
	ReadBalance(ctx context.Context, account common.Address) (*big.Int, error)
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
	Name     string
	Balance  BalanceReader
}

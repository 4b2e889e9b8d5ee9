package erc20

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"approvalScope/internal/model"
	"approvalScope/internal/retry"
)

// balanceReader is the balanceOf capability attached to TokenMeta.
type balanceReader struct {
	token  common.Address
	caller ethereum.ContractCaller
	policy retry.Policy
	logger *zap.Logger
}

// ReadBalance returns balanceOf(account) at the latest block.
func (r *balanceReader) ReadBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, r.policy, r.logger, r.token, parsed, "balanceOf", account)
	if err != nil {
		return nil, contractErr(r.token, "balanceOf", err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, contractErr(r.token, "balanceOf", fmt.Errorf("unexpected type %T", values[0]))
	}
	return bal, nil
}

// NewBalanceReader binds a balanceOf capability to token.
func NewBalanceReader(caller ethereum.ContractCaller, token common.Address, policy retry.Policy, logger *zap.Logger) model.BalanceReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &balanceReader{token: token, caller: caller, policy: policy, logger: logger}
}

// Package exposure turns raw approval and balance amounts into ExposureRecords.
package exposure

import (
	"math/big"

	"github.com/shopspring/decimal"

	"approvalScope/internal/model"
)

// Normalize returns raw / 10^decimals without rounding.
func Normalize(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// Denormalize returns amount * 10^decimals truncated to an integer.
func Denormalize(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// Compute builds the ExposureRecord fields for one approval. Token and
// trace fields are copied from event and meta.
func Compute(event model.ApprovalEvent, meta model.TokenMeta, rawBalance *big.Int, price decimal.NullDecimal) model.ExposureRecord {
	approval := Normalize(event.RawAmount, meta.Decimals)
	balance := Normalize(rawBalance, meta.Decimals)
	exposure := decimal.Min(approval, balance)

	record := model.ExposureRecord{
		TokenName:      meta.Name,
		TokenSymbol:    meta.Symbol,
		TokenContract:  event.TokenContract.Hex(),
		Spender:        event.Spender.Hex(),
		ApprovalAmount: approval,
		Balance:        balance,
		Exposure:       exposure,
		BlockNumber:    event.BlockNumber,
		LogIndex:       event.LogIndex,
		TxHash:         event.TxHash.Hex(),
	}
	if price.Valid {
		record.TokenPriceUSD = price
		record.ExposureUSD = decimal.NullDecimal{Decimal: exposure.Mul(price.Decimal), Valid: true}
	}
	return record
}

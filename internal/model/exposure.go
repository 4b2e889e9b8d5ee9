package model

import (
	"github.com/shopspring/decimal"
)

// ExposureRecord is the at-risk amount for one approval.
// Exposure is min(ApprovalAmount, owner balance). Price-derived fields are
// null when the feed has no usable price.
type ExposureRecord struct {
	TokenName      string              `json:"token_name"`
	TokenSymbol    string              `json:"token_symbol"`
	TokenContract  string              `json:"token_contract"`
	Spender        string              `json:"spender"`
	ApprovalAmount decimal.Decimal     `json:"approval_amount"`
	Balance        decimal.Decimal     `json:"balance"`
	TokenPriceUSD  decimal.NullDecimal `json:"token_price_usd"`
	Exposure       decimal.Decimal     `json:"exposure"`
	ExposureUSD    decimal.NullDecimal `json:"exposure_usd"`
	BlockNumber    uint64              `json:"block_number"`
	LogIndex       uint                `json:"log_index"`
	TxHash         string              `json:"tx_hash"`
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a cached USD price for a (name, symbol) pair.
// An invalid USDPrice means the feed has no price for the token.
type PriceQuote struct {
	Name      string
	Symbol    string
	USDPrice  decimal.NullDecimal
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the quote is stale at now.
func (q PriceQuote) Expired(now time.Time) bool {
	return !now.Before(q.FetchedAt.Add(q.TTL))
}

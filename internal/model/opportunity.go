package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is a candidate market action identified by the advisor.
// Immutable once captured; a trade references exactly one opportunity.
type Opportunity struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Market       string          `json:"market"` // market tag, e.g. "crypto", "prediction"
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"` // position value in account currency
	Confidence   int             `json:"confidence"`
	Rationale    string          `json:"rationale"`
	DiscoveredAt time.Time       `json:"discovered_at"`
}

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

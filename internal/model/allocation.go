package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recipient tags, per redistribution policy. Crisis-tagged recipients
// count toward the mandatory redistribution floor.
const (
	TagCrisis  = "crisis"
	TagKeep    = "keep"
	TagNetwork = "network"
)

// Recipient is one destination of redistributed gains.
type Recipient struct {
	ID         string          `json:"id"`
	Percentage decimal.Decimal `json:"percentage"`
	Tag        string          `json:"tag"`
}

// AllocationLine is one recipient's share of a distributed gain.
type AllocationLine struct {
	RecipientID string          `json:"recipient_id"`
	Tag         string          `json:"tag"`
	Percentage  decimal.Decimal `json:"percentage"`
	Amount      decimal.Decimal `json:"amount"`
}

// Allocation is the conservation-exact split of one settled trade's gain.
// Created once at settlement, immutable thereafter; line amounts sum to
// Gain exactly.
type Allocation struct {
	ID        string           `json:"id"`
	TradeID   string           `json:"trade_id"`
	Gain      decimal.Decimal  `json:"gain"`
	Lines     []AllocationLine `json:"lines"`
	CreatedAt time.Time        `json:"created_at"`
}

// CrisisAmount sums the crisis-tagged lines.
func (a *Allocation) CrisisAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range a.Lines {
		if l.Tag == TagCrisis {
			total = total.Add(l.Amount)
		}
	}
	return total
}

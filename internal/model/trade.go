package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeState is a node in the trade lifecycle state machine.
type TradeState string

const (
	StateProposed  TradeState = "PROPOSED"
	StateAccepted  TradeState = "ACCEPTED"
	StateExecuting TradeState = "EXECUTING"
	StateSettled   TradeState = "SETTLED"
	StateAllocated TradeState = "ALLOCATED"
	StateRejected  TradeState = "REJECTED"
	StateFailed    TradeState = "FAILED"
)

// Terminal reports whether no further transition can leave the state.
// Settled is terminal only for trades without a positive realized P&L;
// the lifecycle manager decides that using the trade itself.
func (s TradeState) Terminal() bool {
	switch s {
	case StateAllocated, StateRejected, StateFailed:
		return true
	}
	return false
}

const (
	ModePaper = "paper"
	ModeReal  = "real"
)

// Trade is the lifecycle unit. It is owned by the lifecycle manager and
// mutated only through defined transitions; every transition snapshot is
// appended to the ledger before the transition counts as complete.
type Trade struct {
	ID          string           `json:"id"`
	RunID       string           `json:"run_id"`
	Opportunity Opportunity      `json:"opportunity"`
	Mode        string           `json:"mode"`
	State       TradeState       `json:"state"`
	Reason      string           `json:"reason,omitempty"` // human-readable reason for terminal states
	EntryPrice  *decimal.Decimal `json:"entry_price,omitempty"`
	ExitPrice   *decimal.Decimal `json:"exit_price,omitempty"`
	EntryTime   *time.Time       `json:"entry_time,omitempty"`
	ExitTime    *time.Time       `json:"exit_time,omitempty"`
	RealizedPnL *decimal.Decimal `json:"realized_pnl,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Settled reports whether the trade settled (with or without an allocation).
func (t *Trade) Settled() bool {
	return t.State == StateSettled || t.State == StateAllocated
}

// Distributable reports whether settlement produced a gain worth allocating.
func (t *Trade) Distributable() bool {
	return t.RealizedPnL != nil && t.RealizedPnL.IsPositive()
}

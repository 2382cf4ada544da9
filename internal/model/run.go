package model

import "time"

// RunOutcome classifies how a scheduler run ended.
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunAborted   RunOutcome = "aborted"
	RunStopped   RunOutcome = "stopped"
)

// Run records one scheduler invocation for audit and crash recovery.
type Run struct {
	ID                string     `json:"id"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	Outcome           RunOutcome `json:"outcome,omitempty"`
	TradeIDs          []string   `json:"trade_ids,omitempty"`
	OpportunitiesSeen int        `json:"opportunities_seen"`
	TradesExecuted    int        `json:"trades_executed"`
}

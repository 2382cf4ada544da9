// Package publish is the transparency sink: human-readable receipts plus
// a re-verifiable export of the ledger. Any concrete destination
// (spreadsheet, chain, flat file) is an adapter behind Publisher; the
// core's obligation ends at the immutable allocation and its ledger entry.
package publish

import (
	"SolarAlpha/internal/ledger"
	"SolarAlpha/internal/model"
)

// Publisher receives settlement artifacts for external transparency.
// Failures are logged, never allowed to fail a run: the ledger, not the
// publication, is the source of truth.
type Publisher interface {
	Allocation(t *model.Trade, a *model.Allocation) error
	RunSummary(r *model.Run, sum *ledger.Summary) error
	Refresh(s ledger.Store) error
}

// Noop is used when no public directory is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Allocation(_ *model.Trade, _ *model.Allocation) error { return nil }
func (*Noop) RunSummary(_ *model.Run, _ *ledger.Summary) error     { return nil }
func (*Noop) Refresh(_ ledger.Store) error                         { return nil }

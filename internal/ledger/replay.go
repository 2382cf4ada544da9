package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"SolarAlpha/internal/model"
)

// State is the world reconstructed from a fold over ledger entries. It is
// how the controller recovers after an unclean termination and how
// balances are derived on demand; there is no mutable balance anywhere
// that could diverge from durable storage.
type State struct {
	// Trades holds the latest snapshot of every trade, keyed by id.
	Trades map[string]*model.Trade
	// Order preserves first-seen order of trade ids for deterministic replay.
	Order []string
	// Allocations holds every allocation, keyed by trade id.
	Allocations map[string]*model.Allocation
	// OpenRuns are runs with a started entry but no finished entry.
	OpenRuns []*model.Run
	// Runs counts finished runs by outcome.
	Runs map[model.RunOutcome]int
}

// Replay folds all entries into a State.
func Replay(s Store) (*State, error) {
	st := &State{
		Trades:      make(map[string]*model.Trade),
		Allocations: make(map[string]*model.Allocation),
		Runs:        make(map[model.RunOutcome]int),
	}
	open := make(map[string]*model.Run)

	err := s.Scan(1, func(e *Entry) error {
		switch {
		case strings.HasPrefix(e.Kind, "trade."):
			var t model.Trade
			if err := json.Unmarshal(e.Payload, &t); err != nil {
				return fmt.Errorf("entry %d: unmarshal trade: %w", e.Seq, err)
			}
			if _, seen := st.Trades[t.ID]; !seen {
				st.Order = append(st.Order, t.ID)
			}
			st.Trades[t.ID] = &t
		case e.Kind == KindAllocation:
			var a model.Allocation
			if err := json.Unmarshal(e.Payload, &a); err != nil {
				return fmt.Errorf("entry %d: unmarshal allocation: %w", e.Seq, err)
			}
			st.Allocations[a.TradeID] = &a
		case e.Kind == KindRunStarted:
			var r model.Run
			if err := json.Unmarshal(e.Payload, &r); err != nil {
				return fmt.Errorf("entry %d: unmarshal run: %w", e.Seq, err)
			}
			open[r.ID] = &r
		case e.Kind == KindRunFinished:
			var r model.Run
			if err := json.Unmarshal(e.Payload, &r); err != nil {
				return fmt.Errorf("entry %d: unmarshal run: %w", e.Seq, err)
			}
			delete(open, r.ID)
			st.Runs[r.Outcome]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range open {
		st.OpenRuns = append(st.OpenRuns, r)
	}
	return st, nil
}

// NonTerminal returns trades that never reached a terminal entry, in
// first-seen order. A Settled trade with a positive P&L and no allocation
// is included: its allocation step is still owed.
func (st *State) NonTerminal() []*model.Trade {
	var out []*model.Trade
	for _, id := range st.Order {
		t := st.Trades[id]
		switch {
		case t.State.Terminal():
		case t.State == model.StateSettled && !t.Distributable():
		default:
			out = append(out, t)
		}
	}
	return out
}

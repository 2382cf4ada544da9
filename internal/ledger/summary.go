package ledger

import (
	"github.com/shopspring/decimal"

	"SolarAlpha/internal/model"
)

// Summary is a set of balances and counters derived from the ledger.
type Summary struct {
	Cash            decimal.Decimal            // starting balance + realized P&L - distributed gains
	RealizedPnL     decimal.Decimal            // sum over settled trades
	Distributed     decimal.Decimal            // sum over allocation gains
	CrisisTotal     decimal.Decimal            // crisis-tagged share of Distributed
	PerRecipient    map[string]decimal.Decimal // distributed amount by recipient id
	OpenExposure    decimal.Decimal            // position value of trades still in flight
	TradesByState   map[model.TradeState]int
	RunsByOutcome   map[model.RunOutcome]int
	TradesSettled   int
	TradesAllocated int
}

// Summarize folds the ledger into balances. startingBalance is the paper
// account's opening cash.
func Summarize(s Store, startingBalance decimal.Decimal) (*Summary, error) {
	st, err := Replay(s)
	if err != nil {
		return nil, err
	}
	return st.Summarize(startingBalance), nil
}

// Summarize computes balances from an already-replayed state.
func (st *State) Summarize(startingBalance decimal.Decimal) *Summary {
	sum := &Summary{
		Cash:          startingBalance,
		RealizedPnL:   decimal.Zero,
		Distributed:   decimal.Zero,
		CrisisTotal:   decimal.Zero,
		OpenExposure:  decimal.Zero,
		PerRecipient:  make(map[string]decimal.Decimal),
		TradesByState: make(map[model.TradeState]int),
		RunsByOutcome: st.Runs,
	}

	for _, id := range st.Order {
		t := st.Trades[id]
		sum.TradesByState[t.State]++
		if t.Settled() {
			sum.TradesSettled++
			if t.RealizedPnL != nil {
				sum.RealizedPnL = sum.RealizedPnL.Add(*t.RealizedPnL)
			}
		}
		switch t.State {
		case model.StateProposed, model.StateAccepted, model.StateExecuting:
			sum.OpenExposure = sum.OpenExposure.Add(t.Opportunity.Size)
		}
	}

	for _, a := range st.Allocations {
		sum.TradesAllocated++
		sum.Distributed = sum.Distributed.Add(a.Gain)
		sum.CrisisTotal = sum.CrisisTotal.Add(a.CrisisAmount())
		for _, l := range a.Lines {
			prev, ok := sum.PerRecipient[l.RecipientID]
			if !ok {
				prev = decimal.Zero
			}
			sum.PerRecipient[l.RecipientID] = prev.Add(l.Amount)
		}
	}

	sum.Cash = sum.Cash.Add(sum.RealizedPnL).Sub(sum.Distributed)
	return sum
}

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SolarAlpha/internal/ledger"
	"SolarAlpha/internal/lifecycle"
	"SolarAlpha/internal/model"
	"SolarAlpha/internal/publish"
	"SolarAlpha/internal/recommend"
	"SolarAlpha/internal/trader"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleOpp(id string) *model.Opportunity {
	return &model.Opportunity{
		ID:           id,
		Symbol:       "BTC-USD",
		Market:       "crypto",
		Side:         model.SideBuy,
		Price:        dec("42000"),
		Size:         dec("10"),
		Confidence:   7,
		DiscoveredAt: time.Now().UTC(),
	}
}

// blockingExecutor settles every trade with the given P&L, optionally
// blocking until released so tests can interleave a stop request.
type blockingExecutor struct {
	pnl     decimal.Decimal
	started chan struct{} // signaled when an execution begins
	release chan struct{} // execution completes once this closes
	once    sync.Once
}

func (e *blockingExecutor) Name() string { return "blocking" }

func (e *blockingExecutor) Execute(_ context.Context, opp *model.Opportunity, _ string) (*trader.Result, error) {
	if e.started != nil {
		e.once.Do(func() { close(e.started) })
	}
	if e.release != nil {
		<-e.release
	}
	now := time.Now().UTC()
	return &trader.Result{
		EntryPrice:  opp.Price,
		ExitPrice:   opp.Price,
		EntryTime:   now,
		ExitTime:    now,
		RealizedPnL: e.pnl,
	}, nil
}

func testRecipients() []model.Recipient {
	return []model.Recipient{
		{ID: "wck", Percentage: decimal.NewFromInt(50), Tag: model.TagCrisis},
		{ID: "you", Percentage: decimal.NewFromInt(50), Tag: model.TagKeep},
	}
}

func newTestController(store ledger.Store, advisor recommend.Advisor, exec trader.Executor, maxTrades int) *Controller {
	policy := lifecycle.NewPolicy(dec("100"), dec("300"), []string{"crypto"})
	mgr := lifecycle.NewManager(store, exec, publish.NewNoop(), policy, testRecipients(), lifecycle.Options{
		Mode:          model.ModePaper,
		ExecTimeout:   time.Second,
		MaxRetries:    1,
		Backoff:       time.Millisecond,
		AppendRetries: 1,
		AppendBackoff: time.Millisecond,
	}, zerolog.Nop())
	return NewController(advisor, mgr, store, publish.NewNoop(), Options{
		IntervalHours:   6,
		MaxTradesPerRun: maxTrades,
		ProposeTimeout:  time.Second,
		StartingBalance: dec("1000"),
	}, zerolog.Nop())
}

func TestRunCycle_CompletesTradesAndRecordsRun(t *testing.T) {
	store := ledger.NewMemoryStore()
	advisor := recommend.NewScriptedAdvisor(sampleOpp("o1"), sampleOpp("o2"))
	ctrl := newTestController(store, advisor, &blockingExecutor{pnl: dec("5.00")}, 3)

	require.NoError(t, ctrl.RunCycle(context.Background()))

	st, err := ledger.Replay(store)
	require.NoError(t, err)
	assert.Len(t, st.OpenRuns, 0, "run must be closed")
	assert.Equal(t, 1, st.Runs[model.RunCompleted])
	assert.Len(t, st.Trades, 2)
	for id, tr := range st.Trades {
		assert.Equal(t, model.StateAllocated, tr.State, "trade %s", id)
	}

	ok, _, err := ledger.VerifyChain(store)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunCycle_RefusesOverlappingRun(t *testing.T) {
	store := ledger.NewMemoryStore()
	exec := &blockingExecutor{
		pnl:     dec("1.00"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	advisor := recommend.NewScriptedAdvisor(sampleOpp("o1"))
	ctrl := newTestController(store, advisor, exec, 1)

	done := make(chan error, 1)
	go func() { done <- ctrl.RunCycle(context.Background()) }()
	<-exec.started

	err := ctrl.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrRunInFlight)

	close(exec.release)
	require.NoError(t, <-done)
}

func TestRunCycle_StopFinishesInFlightTradeThenStartsNothing(t *testing.T) {
	// Stop arrives while a trade is executing: the trade completes its
	// port call and its donation, then no new trade starts and the run
	// ends with outcome stopped.
	store := ledger.NewMemoryStore()
	exec := &blockingExecutor{
		pnl:     dec("5.00"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	advisor := recommend.NewScriptedAdvisor(sampleOpp("o1"), sampleOpp("o2"), sampleOpp("o3"))
	ctrl := newTestController(store, advisor, exec, 3)

	done := make(chan error, 1)
	go func() { done <- ctrl.RunCycle(context.Background()) }()

	<-exec.started
	ctrl.RequestStop()
	close(exec.release)
	require.NoError(t, <-done)

	st, err := ledger.Replay(store)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Runs[model.RunStopped])
	require.Len(t, st.Trades, 1, "no new trade starts after the stop request")
	for _, tr := range st.Trades {
		assert.Equal(t, model.StateAllocated, tr.State,
			"the in-flight trade completes through its donation")
	}
}

func TestRunCycle_NoRecommendationIsNoOp(t *testing.T) {
	store := ledger.NewMemoryStore()
	advisor := recommend.NewScriptedAdvisor() // empty: always unavailable
	ctrl := newTestController(store, advisor, &blockingExecutor{pnl: dec("1.00")}, 3)

	require.NoError(t, ctrl.RunCycle(context.Background()))

	st, err := ledger.Replay(store)
	require.NoError(t, err)
	assert.Empty(t, st.Trades)
	assert.Equal(t, 1, st.Runs[model.RunCompleted])
}

func TestRecover_ClosesOpenRunsAndResumesTrades(t *testing.T) {
	store := ledger.NewMemoryStore()

	// Simulate a crash: an open run, a trade stuck Executing, and a
	// settled winner whose allocation never landed.
	run := &model.Run{ID: "run-crashed", StartedAt: time.Now().UTC()}
	_, err := store.Append(ledger.KindRunStarted, run.ID+":started", run)
	require.NoError(t, err)

	stuck := &model.Trade{
		ID:          "t-stuck",
		Opportunity: *sampleOpp("o-stuck"),
		Mode:        model.ModePaper,
		State:       model.StateExecuting,
	}
	_, err = store.Append(ledger.KindTradeExecuting, stuck.ID+":EXECUTING", stuck)
	require.NoError(t, err)

	pnl := dec("6.00")
	settled := &model.Trade{
		ID:          "t-settled",
		Opportunity: *sampleOpp("o-settled"),
		Mode:        model.ModePaper,
		State:       model.StateSettled,
		RealizedPnL: &pnl,
	}
	_, err = store.Append(ledger.KindTradeSettled, settled.ID+":SETTLED", settled)
	require.NoError(t, err)

	ctrl := newTestController(store, recommend.NewScriptedAdvisor(), &blockingExecutor{pnl: dec("1.00")}, 1)
	require.NoError(t, ctrl.Recover(context.Background()))

	st, err := ledger.Replay(store)
	require.NoError(t, err)

	assert.Empty(t, st.OpenRuns, "interrupted run closed")
	assert.Equal(t, 1, st.Runs[model.RunAborted])
	assert.Equal(t, model.StateFailed, st.Trades["t-stuck"].State,
		"execution outcome unknown after restart")
	assert.Equal(t, model.StateAllocated, st.Trades["t-settled"].State)

	// The settled trade's allocation happened exactly once.
	count := 0
	require.NoError(t, store.Scan(1, func(e *ledger.Entry) error {
		if e.Kind == ledger.KindAllocation {
			count++
		}
		return nil
	}))
	assert.Equal(t, 1, count)

	// Running recovery again changes nothing.
	require.NoError(t, ctrl.Recover(context.Background()))
	st2, err := ledger.Replay(store)
	require.NoError(t, err)
	assert.Equal(t, len(st.Trades), len(st2.Trades))
	assert.Empty(t, st2.NonTerminal())
}

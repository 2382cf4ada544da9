package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsFromCloses(closes []float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Time:   time.Now().Add(-time.Duration(len(closes)-i) * time.Hour),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func TestMomentum_InsufficientDataIsNeutral(t *testing.T) {
	assert.Equal(t, 50.0, Momentum(nil, 14))
	assert.Equal(t, 50.0, Momentum(barsFromCloses([]float64{1, 2, 3}), 14))
	assert.Equal(t, 50.0, Momentum(barsFromCloses([]float64{1, 2, 3}), 0))
}

func TestMomentum_MonotonicSeries(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}

	assert.Equal(t, 100.0, Momentum(barsFromCloses(up), 14), "all gains, no losses")
	assert.InDelta(t, 0.0, Momentum(barsFromCloses(down), 14), 0.001, "all losses")
}

func TestMomentum_MixedSeriesStaysInRange(t *testing.T) {
	closes := make([]float64, 48)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	rsi := Momentum(barsFromCloses(closes), 14)
	assert.Greater(t, rsi, 0.0)
	assert.Less(t, rsi, 100.0)
}

func TestScan_BuildsSnapshotsPerSymbol(t *testing.T) {
	fetcher := &MockFetcher{Bars: map[string][]Bar{
		"BTC-USD": GenerateBars(42000, 48),
		"ETH-USD": GenerateBars(2500, 48),
	}}
	s := NewScanner(fetcher, []string{"BTC-USD", "ETH-USD"}, "crypto", zerolog.Nop())

	snaps := s.Scan(context.Background())
	require.Len(t, snaps, 2)

	for _, snap := range snaps {
		assert.Equal(t, "crypto", snap.Market)
		assert.True(t, snap.LastPrice.IsPositive())
		assert.GreaterOrEqual(t, snap.Momentum, 0.0)
		assert.LessOrEqual(t, snap.Momentum, 100.0)
		assert.False(t, snap.FetchedAt.IsZero())
	}
	assert.Equal(t, "BTC-USD", snaps[0].Symbol)
	assert.Equal(t, "ETH-USD", snaps[1].Symbol)
}

func TestScan_Change24hFromBars(t *testing.T) {
	// 48 hourly closes: flat at 100 until the last 25 bars ramp to 110,
	// so the 24h change is (110-100)/100 = 10%.
	closes := make([]float64, 48)
	for i := range closes {
		closes[i] = 100
	}
	closes[23] = 100 // bar 24h ago (len-25)
	closes[47] = 110
	fetcher := &MockFetcher{Bars: map[string][]Bar{"BTC-USD": barsFromCloses(closes)}}
	s := NewScanner(fetcher, []string{"BTC-USD"}, "crypto", zerolog.Nop())

	snaps := s.Scan(context.Background())
	require.Len(t, snaps, 1)
	assert.InDelta(t, 10.0, snaps[0].Change24h, 0.001)
}

func TestScan_FetchFailuresAreSkipped(t *testing.T) {
	fetcher := &MockFetcher{Err: errors.New("upstream down")}
	s := NewScanner(fetcher, []string{"BTC-USD", "ETH-USD"}, "crypto", zerolog.Nop())

	snaps := s.Scan(context.Background())
	assert.Empty(t, snaps)
}

func TestScan_TooFewBarsIsSkipped(t *testing.T) {
	fetcher := &MockFetcher{Bars: map[string][]Bar{"BTC-USD": barsFromCloses([]float64{100})}}
	s := NewScanner(fetcher, []string{"BTC-USD"}, "crypto", zerolog.Nop())

	assert.Empty(t, s.Scan(context.Background()))
}

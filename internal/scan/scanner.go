// Package scan collects recent market data and condenses it into
// per-symbol snapshots for the advisor.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Snapshot is what the advisor sees about one market.
type Snapshot struct {
	Symbol    string
	Market    string // market tag, e.g. "crypto"
	LastPrice decimal.Decimal
	Change24h float64 // percent
	Momentum  float64 // RSI, 0-100
	FetchedAt time.Time
}

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Bars map[string][]Bar
	Err  error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, symbol string, hours int) ([]Bar, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if bars, ok := m.Bars[symbol]; ok {
		return bars, nil
	}
	return GenerateBars(100, hours), nil
}

// GenerateBars builds a gently trending synthetic series around basePrice.
func GenerateBars(basePrice float64, count int) []Bar {
	bars := make([]Bar, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = Bar{
			Time:   time.Now().Add(-time.Duration(count-i) * time.Hour),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// Scanner fetches bars per configured symbol and computes snapshots.
type Scanner struct {
	fetcher Fetcher
	symbols []string
	market  string
	log     zerolog.Logger
}

// NewScanner creates a Scanner over the given symbols, all carrying the
// same market tag.
func NewScanner(fetcher Fetcher, symbols []string, market string, log zerolog.Logger) *Scanner {
	return &Scanner{
		fetcher: fetcher,
		symbols: symbols,
		market:  market,
		log:     log.With().Str("component", "scanner").Logger(),
	}
}

// Scan fetches the last two days of hourly bars per symbol. Symbols that
// fail to fetch are skipped with a warning; an empty result is not an
// error, it just means no action this cycle.
func (s *Scanner) Scan(ctx context.Context) []Snapshot {
	snapshots := make([]Snapshot, 0, len(s.symbols))
	for _, symbol := range s.symbols {
		snap, err := s.scanOne(ctx, symbol)
		if err != nil {
			s.log.Warn().Str("symbol", symbol).Err(err).Msg("scan failed")
			continue
		}
		s.log.Debug().Str("symbol", symbol).
			Str("price", snap.LastPrice.String()).
			Float64("change_24h", snap.Change24h).
			Float64("momentum", snap.Momentum).
			Msg("scanned")
		snapshots = append(snapshots, *snap)
	}
	return snapshots
}

func (s *Scanner) scanOne(ctx context.Context, symbol string) (*Snapshot, error) {
	bars, err := s.fetcher.FetchBars(ctx, symbol, 48)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	if len(bars) < 2 {
		return nil, fmt.Errorf("not enough bars for %s: got %d", symbol, len(bars))
	}

	last := bars[len(bars)-1].Close
	dayAgo := bars[0].Close
	if idx := len(bars) - 25; idx >= 0 {
		dayAgo = bars[idx].Close
	}
	change := 0.0
	if dayAgo != 0 {
		change = (last - dayAgo) / dayAgo * 100
	}

	return &Snapshot{
		Symbol:    symbol,
		Market:    s.market,
		LastPrice: decimal.NewFromFloat(last).Round(8),
		Change24h: change,
		Momentum:  Momentum(bars, 14),
		FetchedAt: time.Now().UTC(),
	}, nil
}

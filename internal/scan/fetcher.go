package scan

import (
	"context"
	"time"
)

// Bar is a single candlestick. Indicator math stays in float64; money
// leaving this package is converted to decimal at the snapshot boundary.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Fetcher retrieves recent bars for a symbol.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, hours int) ([]Bar, error)
	Name() string
}

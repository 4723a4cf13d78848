// Package market provides a client for stock quote and price history
// lookups against a Yahoo-chart-compatible HTTP API.
package market

import (
	"errors"
	"time"
)

// Sentinel errors callers match with errors.Is to distinguish a bad symbol
// from a broken upstream.
var (
	// ErrSymbolNotFound reports that the upstream has no data for the
	// requested ticker symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrUpstreamUnavailable reports that the upstream could not be
	// reached or returned an unusable response.
	ErrUpstreamUnavailable = errors.New("market data unavailable")
)

// ValidPeriods are the relative lookback windows accepted by History.
var ValidPeriods = []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}

const (
	// DefaultPeriod is used when a history request names neither a
	// period nor a date range.
	DefaultPeriod = "3mo"

	// maxHistoryBars caps the per-bar data returned by History. Summary
	// statistics still cover the full series.
	maxHistoryBars = 20

	dateLayout = "2006-01-02"
)

// Quote is a point-in-time snapshot of a traded symbol.
type Quote struct {
	Symbol           string    `json:"ticker"`
	Price            float64   `json:"current_price"`
	Currency         string    `json:"currency"`
	PreviousClose    float64   `json:"previous_close"`
	Change           float64   `json:"change"`
	ChangePercent    float64   `json:"change_percent"`
	MarketCap        int64     `json:"market_cap,omitempty"`
	FiftyTwoWeekHigh float64   `json:"52_week_high,omitempty"`
	FiftyTwoWeekLow  float64   `json:"52_week_low,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// HistoryBar is a single trading day of OHLCV data.
type HistoryBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// History summarizes a symbol's closing prices over a window and carries
// the most recent bars. Statistics cover every data point in the window,
// Bars holds at most the trailing maxHistoryBars entries.
type History struct {
	Symbol        string       `json:"ticker"`
	Period        string       `json:"period"`
	DataPoints    int          `json:"data_points"`
	MinClose      float64      `json:"min_price"`
	MaxClose      float64      `json:"max_price"`
	AverageClose  float64      `json:"average_price"`
	LatestClose   float64      `json:"latest_price"`
	Change        float64      `json:"price_change"`
	ChangePercent float64      `json:"price_change_percent"`
	Bars          []HistoryBar `json:"historical_data"`
}

// HistoryOptions selects the window for a History call. A complete
// Start/End date range takes precedence over Period; a half-open range is
// an error. When nothing is set, DefaultPeriod applies.
type HistoryOptions struct {
	Period string
	Start  time.Time
	End    time.Time
}

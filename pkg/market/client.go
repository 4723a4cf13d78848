package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tickerdesk/tickerdesk/pkg/config"
	"github.com/tickerdesk/tickerdesk/pkg/httpclient"
)

// Client fetches quotes and price history from the chart API.
type Client struct {
	baseURL   string
	userAgent string
	http      *httpclient.Client
}

// NewClient builds a Client from cfg. Transient upstream failures are
// retried per cfg.MaxRetries, honoring standard Retry-After headers.
func NewClient(cfg config.MarketConfig) *Client {
	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithHeaderParser(httpclient.ParseRetryAfterHeader),
	)

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		http:      httpClient,
	}
}

// Quote returns the latest traded price for symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*Quote, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("range", "1d")
	params.Set("interval", "1d")

	result, err := c.fetchChart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	meta := result.Meta
	price := meta.RegularMarketPrice
	if price == 0 {
		price = lastClose(result)
	}
	if price == 0 {
		return nil, fmt.Errorf("%w: no price data for %s", ErrSymbolNotFound, symbol)
	}

	quote := &Quote{
		Symbol:           symbol,
		Price:            price,
		Currency:         meta.Currency,
		PreviousClose:    meta.PreviousClose,
		MarketCap:        meta.MarketCap,
		FiftyTwoWeekHigh: meta.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  meta.FiftyTwoWeekLow,
		Timestamp:        time.Now().UTC(),
	}
	if quote.Currency == "" {
		quote.Currency = "USD"
	}
	if quote.PreviousClose == 0 {
		quote.PreviousClose = meta.ChartPreviousClose
	}
	if quote.PreviousClose != 0 {
		quote.Change = price - quote.PreviousClose
		quote.ChangePercent = quote.Change / quote.PreviousClose * 100
	}
	if meta.RegularMarketTime > 0 {
		quote.Timestamp = time.Unix(meta.RegularMarketTime, 0).UTC()
	}

	return quote, nil
}

// History returns closing price statistics over the requested window plus
// the most recent bars.
func (c *Client) History(ctx context.Context, symbol string, opts HistoryOptions) (*History, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	params, label, err := historyParams(opts)
	if err != nil {
		return nil, err
	}

	result, err := c.fetchChart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	bars := collectBars(result)
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no data for %s", ErrSymbolNotFound, symbol)
	}

	history := &History{
		Symbol:     symbol,
		Period:     label,
		DataPoints: len(bars),
		MinClose:   bars[0].Close,
		MaxClose:   bars[0].Close,
	}

	var sum float64
	for _, bar := range bars {
		if bar.Close < history.MinClose {
			history.MinClose = bar.Close
		}
		if bar.Close > history.MaxClose {
			history.MaxClose = bar.Close
		}
		sum += bar.Close
	}
	history.AverageClose = sum / float64(len(bars))

	first := bars[0].Close
	last := bars[len(bars)-1].Close
	history.LatestClose = last
	history.Change = last - first
	if first != 0 {
		history.ChangePercent = history.Change / first * 100
	}

	if len(bars) > maxHistoryBars {
		bars = bars[len(bars)-maxHistoryBars:]
	}
	history.Bars = bars

	return history, nil
}

// historyParams translates opts into chart query parameters plus the
// window label echoed back in the History response.
func historyParams(opts HistoryOptions) (url.Values, string, error) {
	params := url.Values{}
	params.Set("interval", "1d")

	hasStart := !opts.Start.IsZero()
	hasEnd := !opts.End.IsZero()

	switch {
	case hasStart && hasEnd:
		if !opts.Start.Before(opts.End) {
			return nil, "", fmt.Errorf("start date %s must be before end date %s",
				opts.Start.Format(dateLayout), opts.End.Format(dateLayout))
		}
		params.Set("period1", strconv.FormatInt(opts.Start.Unix(), 10))
		params.Set("period2", strconv.FormatInt(opts.End.Unix(), 10))
		label := fmt.Sprintf("%s to %s", opts.Start.Format(dateLayout), opts.End.Format(dateLayout))
		return params, label, nil

	case hasStart || hasEnd:
		return nil, "", fmt.Errorf("start and end dates must be provided together")

	default:
		period := opts.Period
		if period == "" {
			period = DefaultPeriod
		}
		if !slices.Contains(ValidPeriods, period) {
			return nil, "", fmt.Errorf("invalid period %q (valid: %s)", period, strings.Join(ValidPeriods, ", "))
		}
		params.Set("range", period)
		return params, period, nil
	}
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}
	return symbol, nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

// chartQuote arrays run parallel to the timestamp array. Entries are null
// for days the upstream has no data.
type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type chartMeta struct {
	Currency           string  `json:"currency"`
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	PreviousClose      float64 `json:"previousClose"`
	ChartPreviousClose float64 `json:"chartPreviousClose"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
	MarketCap          int64   `json:"marketCap"`
	FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
}

func (c *Client) fetchChart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	// The retry client returns the response alongside the error for
	// non-2xx statuses, and the body may carry the upstream's error
	// detail. Classify from the body first, then the status code.
	if resp == nil {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("%w: no response received", ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, readErr)
	}

	var parsed chartResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if cerr := parsed.Chart.Error; decodeErr == nil && cerr != nil {
		if isNotFound(resp.StatusCode, cerr) {
			return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstreamUnavailable, cerr.Code, cerr.Description)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream returned status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUpstreamUnavailable, decodeErr)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	return &parsed.Chart.Result[0], nil
}

// isNotFound reports whether the upstream error means the symbol itself is
// unknown rather than the service being down.
func isNotFound(status int, cerr *chartError) bool {
	if status == http.StatusNotFound {
		return true
	}
	return strings.EqualFold(cerr.Code, "Not Found")
}

// collectBars flattens the parallel chart arrays into per-day bars,
// skipping days with a null close.
func collectBars(result *chartResult) []HistoryBar {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]HistoryBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePrice := floatAt(quote.Close, i)
		if closePrice == nil {
			continue
		}
		bar := HistoryBar{
			Date:  time.Unix(ts, 0).UTC().Format(dateLayout),
			Close: *closePrice,
		}
		if v := floatAt(quote.Open, i); v != nil {
			bar.Open = *v
		}
		if v := floatAt(quote.High, i); v != nil {
			bar.High = *v
		}
		if v := floatAt(quote.Low, i); v != nil {
			bar.Low = *v
		}
		if v := intAt(quote.Volume, i); v != nil {
			bar.Volume = *v
		}
		bars = append(bars, bar)
	}
	return bars
}

// lastClose returns the most recent non-null close, or 0 when the chart
// carries no usable closes.
func lastClose(result *chartResult) float64 {
	if len(result.Indicators.Quote) == 0 {
		return 0
	}
	closes := result.Indicators.Quote[0].Close
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] != nil {
			return *closes[i]
		}
	}
	return 0
}

func floatAt(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func intAt(values []*int64, i int) *int64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

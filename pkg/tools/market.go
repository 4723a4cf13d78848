package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tickerdesk/tickerdesk/pkg/market"
)

const dateLayout = "2006-01-02"

// MarketData is the slice of the market client the stock tools use.
type MarketData interface {
	Quote(ctx context.Context, symbol string) (*market.Quote, error)
	History(ctx context.Context, symbol string, opts market.HistoryOptions) (*market.History, error)
}

// StockPriceTool answers get_stock_price calls with a current quote.
type StockPriceTool struct {
	client MarketData
}

// NewStockPriceTool creates the quote tool over the given market client.
func NewStockPriceTool(client MarketData) *StockPriceTool {
	return &StockPriceTool{client: client}
}

func (t *StockPriceTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "get_stock_price",
		Description: "Get the current stock price for a ticker symbol. Returns current price, previous close, change, and market data.",
		Parameters: []ToolParameter{
			{
				Name:        "symbol",
				Type:        "string",
				Description: "Stock ticker symbol (e.g., 'AMZN' for Amazon)",
				Required:    true,
			},
		},
	}
}

func (t *StockPriceTool) GetName() string {
	return "get_stock_price"
}

func (t *StockPriceTool) GetDescription() string {
	return t.GetInfo().Description
}

func (t *StockPriceTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()

	symbol, ok := stringArg(args, "symbol")
	if !ok {
		err := fmt.Errorf("symbol parameter is required")
		return errorResult(t.GetName(), err, start), err
	}

	quote, err := t.client.Quote(ctx, symbol)
	if err != nil {
		return errorResult(t.GetName(), err, start), err
	}

	content, err := json.MarshalIndent(quote, "", "  ")
	if err != nil {
		return errorResult(t.GetName(), err, start), err
	}

	result := successResult(t.GetName(), string(content), start)
	result.Metadata = map[string]any{"symbol": quote.Symbol}
	return result, nil
}

// StockHistoryTool answers get_historical_stock_prices calls with OHLCV
// bars and summary statistics over a period or explicit date range.
type StockHistoryTool struct {
	client MarketData
}

// NewStockHistoryTool creates the history tool over the given market client.
func NewStockHistoryTool(client MarketData) *StockHistoryTool {
	return &StockHistoryTool{client: client}
}

func (t *StockHistoryTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "get_historical_stock_prices",
		Description: "Get historical stock price data for a ticker symbol. Can specify a date range or use a predefined period. Returns price statistics and recent trading data.",
		Parameters: []ToolParameter{
			{
				Name:        "symbol",
				Type:        "string",
				Description: "Stock ticker symbol",
				Required:    true,
			},
			{
				Name:        "start_date",
				Type:        "string",
				Description: "Start date in YYYY-MM-DD format (optional)",
				Required:    false,
			},
			{
				Name:        "end_date",
				Type:        "string",
				Description: "End date in YYYY-MM-DD format (optional)",
				Required:    false,
			},
			{
				Name:        "period",
				Type:        "string",
				Description: "Period if dates not specified: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max",
				Required:    false,
				Default:     market.DefaultPeriod,
				Enum:        market.ValidPeriods,
			},
		},
	}
}

func (t *StockHistoryTool) GetName() string {
	return "get_historical_stock_prices"
}

func (t *StockHistoryTool) GetDescription() string {
	return t.GetInfo().Description
}

func (t *StockHistoryTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()

	symbol, ok := stringArg(args, "symbol")
	if !ok {
		err := fmt.Errorf("symbol parameter is required")
		return errorResult(t.GetName(), err, start), err
	}

	opts, err := historyOptions(args)
	if err != nil {
		return errorResult(t.GetName(), err, start), err
	}

	history, err := t.client.History(ctx, symbol, opts)
	if err != nil {
		return errorResult(t.GetName(), err, start), err
	}

	content, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return errorResult(t.GetName(), err, start), err
	}

	result := successResult(t.GetName(), string(content), start)
	result.Metadata = map[string]any{
		"symbol": history.Symbol,
		"period": history.Period,
	}
	return result, nil
}

// historyOptions builds the window selection from tool arguments.
func historyOptions(args map[string]any) (market.HistoryOptions, error) {
	var opts market.HistoryOptions

	if period, ok := stringArg(args, "period"); ok {
		opts.Period = period
	}

	startDate, hasStart := stringArg(args, "start_date")
	endDate, hasEnd := stringArg(args, "end_date")

	if hasStart != hasEnd {
		return opts, fmt.Errorf("start_date and end_date must be given together")
	}
	if !hasStart {
		return opts, nil
	}

	startTime, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return opts, fmt.Errorf("invalid start_date %q: expected YYYY-MM-DD", startDate)
	}
	endTime, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return opts, fmt.Errorf("invalid end_date %q: expected YYYY-MM-DD", endDate)
	}

	opts.Start = startTime
	opts.End = endTime
	return opts, nil
}

func successResult(name, content string, start time.Time) ToolResult {
	return ToolResult{
		Success:       true,
		Content:       content,
		ToolName:      name,
		ExecutionTime: time.Since(start),
	}
}

func errorResult(name string, err error, start time.Time) ToolResult {
	return ToolResult{
		Success:       false,
		Error:         err.Error(),
		ToolName:      name,
		ExecutionTime: time.Since(start),
	}
}

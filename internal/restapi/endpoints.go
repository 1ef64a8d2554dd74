package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type OrderSide struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// GridLevel is one rung of a symbol's grid as the backend stores it.
type GridLevel struct {
	Triggered bool      `json:"triggered"`
	Status    string    `json:"status"`
	Buy       OrderSide `json:"buy"`
	Sell      OrderSide `json:"sell"`
}

// Candle is one OHLCV bar. T is the bar's open time in epoch milliseconds.
type Candle struct {
	T int64           `json:"t"`
	O decimal.Decimal `json:"o"`
	H decimal.Decimal `json:"h"`
	L decimal.Decimal `json:"l"`
	C decimal.Decimal `json:"c"`
	V decimal.Decimal `json:"v"`
}

// DefaultCandleInterval is what the backend assumes when no interval is given.
const DefaultCandleInterval = "1m"

type LogItem struct {
	Action    string          `json:"action"`
	Price     decimal.Decimal `json:"price"`
	Timestamp string          `json:"timestamp"`
}

type ArchiveRow struct {
	Symbol           string          `json:"symbol"`
	Profit           decimal.Decimal `json:"profit"`
	ProfitPercentage decimal.Decimal `json:"profitPercentage"`
	Trades           int             `json:"trades"`
	ArchivedAt       string          `json:"archivedAt"`
}

type ArchiveStats struct {
	Profit           decimal.Decimal `json:"profit"`
	ProfitPercentage decimal.Decimal `json:"profitPercentage"`
	Trades           int             `json:"trades"`
}

type Archive struct {
	Rows  []ArchiveRow `json:"rows"`
	Stats ArchiveStats `json:"stats"`
}

// ArchiveQuery selects archived trades. Zero Page and Limit mean 1 and 50.
type ArchiveQuery struct {
	AuthToken string `json:"authToken"`
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Page      int    `json:"page"`
	Limit     int    `json:"limit"`
}

func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var v struct {
		Price decimal.NullDecimal `json:"price"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/price", symbolQuery(symbol), nil, &v); err != nil {
		return decimal.Zero, err
	}
	if !v.Price.Valid {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return v.Price.Decimal, nil
}

func (c *Client) Grid(ctx context.Context, symbol string) ([]GridLevel, error) {
	var v struct {
		GridTrade []GridLevel `json:"gridTrade"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/grid-trade", symbolQuery(symbol), nil, &v); err != nil {
		return nil, err
	}
	if v.GridTrade == nil {
		v.GridTrade = []GridLevel{}
	}
	return v.GridTrade, nil
}

// Candles returns the symbol's bars oldest first. The backend answers some
// failures with a 200 and an {"error": ...} body; those come back as errors.
func (c *Client) Candles(ctx context.Context, symbol, interval string) ([]Candle, error) {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		interval = DefaultCandleInterval
	}
	q := symbolQuery(symbol)
	q.Set("interval", interval)

	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/api/candles", q, nil, &raw); err != nil {
		return nil, err
	}
	out := []Candle{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode /api/candles: %w", err)
		}
		return out, nil
	}
	var v struct {
		Error   string   `json:"error"`
		Candles []Candle `json:"candles"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode /api/candles: %w", err)
	}
	if v.Error != "" {
		return nil, &APIError{Status: http.StatusBadGateway, Message: v.Error}
	}
	if v.Candles != nil {
		out = v.Candles
	}
	return out, nil
}

// SaveGrid replaces the symbol's grid. Levels are stored untriggered.
func (c *Client) SaveGrid(ctx context.Context, symbol string, levels []GridLevel) error {
	out := make([]GridLevel, len(levels))
	for i, l := range levels {
		out[i] = GridLevel{Buy: l.Buy, Sell: l.Sell}
	}
	body := struct {
		Symbol string      `json:"symbol"`
		Levels []GridLevel `json:"levels"`
	}{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Levels: out}
	return c.call(ctx, http.MethodPost, "/api/grid-trade", nil, body, nil)
}

func (c *Client) StartGrid(ctx context.Context, symbol string) error {
	return c.call(ctx, http.MethodPost, "/api/grid-trade/start", symbolQuery(symbol), nil, nil)
}

func (c *Client) StopGrid(ctx context.Context, symbol string) error {
	return c.call(ctx, http.MethodPost, "/api/grid-trade/stop", symbolQuery(symbol), nil, nil)
}

func (c *Client) Logs(ctx context.Context, symbol string) ([]LogItem, error) {
	var v struct {
		Data struct {
			Rows []LogItem `json:"rows"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/logs", symbolQuery(symbol), nil, &v); err != nil {
		return nil, err
	}
	if v.Data.Rows == nil {
		return []LogItem{}, nil
	}
	return v.Data.Rows, nil
}

// ExportLogs returns the backend's log export file as-is with its content type.
func (c *Client) ExportLogs(ctx context.Context, symbol string) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/logs/export", symbolQuery(symbol), nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read log export: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return b, ct, nil
}

func (c *Client) Archive(ctx context.Context, q ArchiveQuery) (Archive, error) {
	if q.Type == "" {
		q.Type = "symbol"
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	var v struct {
		Data *Archive `json:"data"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/archive", nil, q, &v); err != nil {
		return Archive{}, err
	}
	if v.Data == nil {
		return Archive{Rows: []ArchiveRow{}}, nil
	}
	if v.Data.Rows == nil {
		v.Data.Rows = []ArchiveRow{}
	}
	return *v.Data, nil
}

func (c *Client) DeleteArchive(ctx context.Context, q ArchiveQuery) error {
	q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
	return c.call(ctx, http.MethodPost, "/api/archive/delete", nil, q, nil)
}

// Monitoring lists the symbols the backend watcher is following.
func (c *Client) Monitoring(ctx context.Context) ([]string, error) {
	var v struct {
		Symbols []string `json:"symbols"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/monitoring", nil, nil, &v); err != nil {
		return nil, err
	}
	if v.Symbols == nil {
		return []string{}, nil
	}
	return v.Symbols, nil
}

func (c *Client) SetMonitoring(ctx context.Context, symbol string, active bool) error {
	q := symbolQuery(symbol)
	q.Set("active", strconv.FormatBool(active))
	return c.call(ctx, http.MethodPost, "/api/monitoring", q, nil, nil)
}

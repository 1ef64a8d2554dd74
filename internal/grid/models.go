package grid

import "github.com/shopspring/decimal"

// Row is one grid level prepared for the dashboard table.
type Row struct {
	Level        int             `json:"level"` // 1-based position in the backend's grid
	Rank         int             `json:"rank"`  // 0 is the level nearest the current price
	BuyPrice     decimal.Decimal `json:"buyPrice"`
	BuyQuantity  decimal.Decimal `json:"buyQuantity"`
	SellPrice    decimal.Decimal `json:"sellPrice"`
	SellQuantity decimal.Decimal `json:"sellQuantity"`
	Spread       decimal.Decimal `json:"spread"`
	SpreadPct    decimal.Decimal `json:"spreadPct"`
	Distance     decimal.Decimal `json:"distance"`
	Status       string          `json:"status"`
	Triggered    bool            `json:"triggered"`
	Duplicate    bool            `json:"duplicate,omitempty"`
}

type Summary struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
	Total     int             `json:"total"`
	Triggered int             `json:"triggered"`
	InRange   bool            `json:"inRange"` // price lies between the lowest buy and the highest sell
	Rows      []Row           `json:"rows"`
}

type Profit struct {
	Profit           decimal.Decimal `json:"profit"`
	ProfitPercentage decimal.Decimal `json:"profitPercentage"`
	Trades           int             `json:"trades"`
}

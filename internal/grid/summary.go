// Package grid turns raw grid levels from the backend into the ranked rows and
// totals the dashboard shows.
package grid

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"grid-dashboard/internal/restapi"
)

var hundred = decimal.NewFromInt(100)

// Summarize ranks levels by how close they sit to price, nearest first. Ties
// keep the backend's order. A zero price leaves every distance at zero.
func Summarize(symbol string, levels []restapi.GridLevel, price decimal.Decimal) Summary {
	s := Summary{
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		Price:  price,
		Active: len(levels) > 0,
		Total:  len(levels),
		Rows:   make([]Row, 0, len(levels)),
	}
	if len(levels) == 0 {
		return s
	}

	// Numerically equal prices can carry different exponents, so duplicates
	// are detected on the canonical string form.
	seen := make(map[string]bool, len(levels))
	lowBuy, highSell := levels[0].Buy.Price, levels[0].Sell.Price
	for i, l := range levels {
		if l.Triggered {
			s.Triggered++
		}
		if l.Buy.Price.LessThan(lowBuy) {
			lowBuy = l.Buy.Price
		}
		if l.Sell.Price.GreaterThan(highSell) {
			highSell = l.Sell.Price
		}
		key := canonicalPriceKey(l.Buy.Price)
		row := Row{
			Level:        i + 1,
			BuyPrice:     l.Buy.Price,
			BuyQuantity:  l.Buy.Quantity,
			SellPrice:    l.Sell.Price,
			SellQuantity: l.Sell.Quantity,
			Spread:       l.Sell.Price.Sub(l.Buy.Price),
			Status:       l.Status,
			Triggered:    l.Triggered,
			Duplicate:    seen[key],
		}
		seen[key] = true
		if !l.Buy.Price.IsZero() {
			row.SpreadPct = row.Spread.Div(l.Buy.Price).Mul(hundred).Round(4)
		}
		if !price.IsZero() {
			row.Distance = decimal.Min(l.Buy.Price.Sub(price).Abs(), l.Sell.Price.Sub(price).Abs())
		}
		s.Rows = append(s.Rows, row)
	}
	s.InRange = !price.IsZero() && price.GreaterThanOrEqual(lowBuy) && price.LessThanOrEqual(highSell)

	slices.SortStableFunc(s.Rows, func(a, b Row) int {
		return a.Distance.Cmp(b.Distance)
	})
	for i := range s.Rows {
		s.Rows[i].Rank = i
	}
	return s
}

// SummarizeArchive prefers the backend's stats and falls back to totals over
// the rows when the stats are empty.
func SummarizeArchive(a restapi.Archive) Profit {
	p := Profit{
		Profit:           a.Stats.Profit,
		ProfitPercentage: a.Stats.ProfitPercentage,
		Trades:           a.Stats.Trades,
	}
	if !p.Profit.IsZero() || p.Trades != 0 || len(a.Rows) == 0 {
		return p
	}
	var pct decimal.Decimal
	for _, r := range a.Rows {
		p.Profit = p.Profit.Add(r.Profit)
		pct = pct.Add(r.ProfitPercentage)
		p.Trades += r.Trades
	}
	p.ProfitPercentage = pct.Div(decimal.NewFromInt(int64(len(a.Rows)))).Round(2)
	return p
}

// canonicalPriceKey normalizes a Decimal so numerically equal values map to the same key.
func canonicalPriceKey(p decimal.Decimal) string {
	return p.String()
}

// Package margin computes floating profit, required margin, equity and free
// margin for forex positions. Every function is pure.
package margin

import (
	"strings"

	"zentum/internal/model"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
)

var (
	StandardLot = decimal.NewFromInt(100000)
	SmallLot    = decimal.NewFromInt(1000)

	hundred = decimal.NewFromInt(100)
)

// QuoteFunc returns the last known price for symbol, or false if no quote has arrived yet.
type QuoteFunc func(symbol string) (decimal.Decimal, bool)

// ContractSizeFunc returns the units per lot for symbol.
type ContractSizeFunc func(symbol string) decimal.Decimal

// ContractSize is 1,000 units for JPY pairs and metals and 100,000 for other currency pairs.
func ContractSize(symbol string) decimal.Decimal {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "JPY") || strings.HasPrefix(s, "XAU") || strings.HasPrefix(s, "XAG") {
		return SmallLot
	}
	return StandardLot
}

func FloatingPL(dir types.Direction, entry, quote, size, contractSize decimal.Decimal) decimal.Decimal {
	units := size.Mul(contractSize)
	switch dir {
	case types.DirectionBuy:
		return quote.Sub(entry).Mul(units)
	case types.DirectionSell:
		return entry.Sub(quote).Mul(units)
	default:
		return decimal.Zero
	}
}

func RequiredMargin(size, contractSize, leverage decimal.Decimal) decimal.Decimal {
	if leverage.LessThanOrEqual(decimal.Zero) {
		return size.Mul(contractSize)
	}
	return size.Mul(contractSize.Div(leverage))
}

func Equity(balance decimal.Decimal, pls ...decimal.Decimal) decimal.Decimal {
	out := balance
	for _, pl := range pls {
		out = out.Add(pl)
	}
	return out
}

func FreeMargin(equity, usedMargin decimal.Decimal) decimal.Decimal {
	return equity.Sub(usedMargin)
}

// Level is equity as a percentage of used margin, zero when nothing is used.
func Level(equity, usedMargin decimal.Decimal) decimal.Decimal {
	if usedMargin.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return equity.Div(usedMargin).Mul(hundred)
}

type Summary struct {
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	UsedMargin  decimal.Decimal `json:"used_margin"`
	FreeMargin  decimal.Decimal `json:"free_margin"`
	MarginLevel decimal.Decimal `json:"margin_level"`
	FloatingPL  decimal.Decimal `json:"floating_pl"`
}

// Calculator binds the leverage constant, contract sizes and a quote source.
type Calculator struct {
	Leverage     decimal.Decimal
	ContractSize ContractSizeFunc
	Quote        QuoteFunc
}

func NewCalculator(leverage decimal.Decimal, contractSize ContractSizeFunc, quote QuoteFunc) Calculator {
	if contractSize == nil {
		contractSize = ContractSize
	}
	return Calculator{Leverage: leverage, ContractSize: contractSize, Quote: quote}
}

// PositionPL is the floating profit of p at the current quote. A missing quote yields zero.
func (c Calculator) PositionPL(p model.Position) decimal.Decimal {
	if c.Quote == nil {
		return decimal.Zero
	}
	q, ok := c.Quote(p.Symbol)
	if !ok {
		return decimal.Zero
	}
	return FloatingPL(p.Direction, p.EntryPrice, q, p.Lots, c.ContractSize(p.Symbol))
}

func (c Calculator) Required(symbol string, lots decimal.Decimal) decimal.Decimal {
	return RequiredMargin(lots, c.ContractSize(symbol), c.Leverage)
}

func (c Calculator) Summarize(balance decimal.Decimal, positions []model.Position) Summary {
	floating := decimal.Zero
	used := decimal.Zero
	for _, p := range positions {
		floating = floating.Add(c.PositionPL(p))
		used = used.Add(c.Required(p.Symbol, p.Lots))
	}
	equity := Equity(balance, floating)
	return Summary{
		Balance:     balance,
		Equity:      equity,
		UsedMargin:  used,
		FreeMargin:  FreeMargin(equity, used),
		MarginLevel: Level(equity, used),
		FloatingPL:  floating,
	}
}

type HoldingsSummary struct {
	Balance     decimal.Decimal `json:"balance"`
	MarketValue decimal.Decimal `json:"market_value"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	FloatingPL  decimal.Decimal `json:"floating_pl"`
}

// SummarizeHoldings values crypto holdings at the current quote. Holdings
// without a quote are carried at cost.
func (c Calculator) SummarizeHoldings(balance decimal.Decimal, holdings []model.Holding) HoldingsSummary {
	out := HoldingsSummary{Balance: balance}
	for _, h := range holdings {
		cost := h.Quantity.Mul(h.EntryPrice)
		value := cost
		if c.Quote != nil {
			if q, ok := c.Quote(h.Symbol); ok {
				value = h.Quantity.Mul(q)
			}
		}
		out.CostBasis = out.CostBasis.Add(cost)
		out.MarketValue = out.MarketValue.Add(value)
	}
	out.FloatingPL = out.MarketValue.Sub(out.CostBasis)
	return out
}

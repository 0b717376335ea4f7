package margin

import (
	"testing"

	"zentum/internal/model"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quotes(m map[string]string) QuoteFunc {
	return func(symbol string) (decimal.Decimal, bool) {
		v, ok := m[symbol]
		if !ok {
			return decimal.Zero, false
		}
		return d(v), true
	}
}

func TestContractSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol string
		want   decimal.Decimal
	}{
		{"EURUSD", StandardLot},
		{"GBPUSD", StandardLot},
		{"USDJPY", SmallLot},
		{"gbpjpy", SmallLot},
		{"XAUUSD", SmallLot},
		{"XAGUSD", SmallLot},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.symbol, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.want.Equal(ContractSize(tt.symbol)), "got %s", ContractSize(tt.symbol))
		})
	}
}

func TestFloatingPL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		dir   types.Direction
		entry string
		quote string
		size  string
		want  string
	}{
		{name: "buy_profit", dir: types.DirectionBuy, entry: "1.1000", quote: "1.1010", size: "0.10", want: "10"},
		{name: "buy_loss", dir: types.DirectionBuy, entry: "1.1000", quote: "1.0990", size: "0.10", want: "-10"},
		{name: "sell_profit", dir: types.DirectionSell, entry: "1.1000", quote: "1.0950", size: "1", want: "500"},
		{name: "sell_loss", dir: types.DirectionSell, entry: "1.1000", quote: "1.1020", size: "0.5", want: "-100"},
		{name: "flat", dir: types.DirectionBuy, entry: "1.1000", quote: "1.1000", size: "2", want: "0"},
		{name: "unknown_direction", dir: types.Direction("HOLD"), entry: "1.1", quote: "1.2", size: "1", want: "0"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := FloatingPL(tt.dir, d(tt.entry), d(tt.quote), d(tt.size), StandardLot)
			assert.True(t, d(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestRequiredMargin(t *testing.T) {
	t.Parallel()

	got := RequiredMargin(d("0.10"), StandardLot, decimal.NewFromInt(5000))
	assert.True(t, d("2").Equal(got), "got %s", got)

	got = RequiredMargin(d("1"), SmallLot, decimal.NewFromInt(5000))
	assert.True(t, d("0.2").Equal(got), "got %s", got)

	got = RequiredMargin(d("1"), StandardLot, decimal.Zero)
	assert.True(t, StandardLot.Equal(got), "zero leverage means fully funded")
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(decimal.NewFromInt(5000), nil, quotes(map[string]string{
		"EURUSD": "1.1010",
		"USDJPY": "150.50",
	}))
	positions := []model.Position{
		{ID: "a", Symbol: "EURUSD", Direction: types.DirectionBuy, EntryPrice: d("1.1000"), Lots: d("0.10")},
		{ID: "b", Symbol: "USDJPY", Direction: types.DirectionSell, EntryPrice: d("150.00"), Lots: d("1")},
		{ID: "c", Symbol: "GBPUSD", Direction: types.DirectionBuy, EntryPrice: d("1.2500"), Lots: d("1")},
	}

	s := calc.Summarize(d("1000"), positions)

	// EURUSD +10, USDJPY -500, GBPUSD has no quote yet so contributes nothing.
	assert.True(t, d("-490").Equal(s.FloatingPL), "floating %s", s.FloatingPL)
	assert.True(t, d("510").Equal(s.Equity), "equity %s", s.Equity)
	// 2 + 0.2 + 20
	assert.True(t, d("22.2").Equal(s.UsedMargin), "used %s", s.UsedMargin)
	assert.True(t, s.Equity.Sub(s.UsedMargin).Equal(s.FreeMargin))
	assert.True(t, s.MarginLevel.GreaterThan(decimal.Zero))
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(decimal.NewFromInt(5000), nil, nil)
	s := calc.Summarize(d("250"), nil)
	assert.True(t, d("250").Equal(s.Equity))
	assert.True(t, d("250").Equal(s.FreeMargin))
	assert.True(t, s.MarginLevel.IsZero())
}

func TestSummarizeHoldings(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(decimal.NewFromInt(5000), nil, quotes(map[string]string{"BTC": "65000"}))
	s := calc.SummarizeHoldings(d("100"), []model.Holding{
		{ID: "h1", Symbol: "BTC", Quantity: d("0.5"), EntryPrice: d("60000")},
		{ID: "h2", Symbol: "ETH", Quantity: d("2"), EntryPrice: d("3000")},
	})
	assert.True(t, d("36000").Equal(s.CostBasis), "cost %s", s.CostBasis)
	assert.True(t, d("38500").Equal(s.MarketValue), "value %s", s.MarketValue)
	assert.True(t, d("2500").Equal(s.FloatingPL), "pl %s", s.FloatingPL)
}

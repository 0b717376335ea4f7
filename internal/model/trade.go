package model

import (
	"time"

	"zentum/internal/types"

	"github.com/shopspring/decimal"
)

// OpenItem is either a forex Position or a crypto Holding.
type OpenItem interface {
	ItemID() string
	ItemSymbol() string
	Market() types.Market
	openItem()
}

type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  types.Direction `json:"direction"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Lots       decimal.Decimal `json:"lots"`
	OpenedAt   time.Time       `json:"opened_at"`
}

func (p Position) ItemID() string       { return p.ID }
func (p Position) ItemSymbol() string   { return p.Symbol }
func (p Position) Market() types.Market { return types.MarketForex }
func (Position) openItem()              {}

type Holding struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	OpenedAt   time.Time       `json:"opened_at"`
}

func (h Holding) ItemID() string       { return h.ID }
func (h Holding) ItemSymbol() string   { return h.Symbol }
func (h Holding) Market() types.Market { return types.MarketCrypto }
func (Holding) openItem()              {}

type ClosedTradeRecord struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Direction  types.Direction `json:"direction"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Size       decimal.Decimal `json:"size"`
	Profit     decimal.Decimal `json:"profit"`
	ClosedAt   time.Time       `json:"closed_at"`
	Market     types.Market    `json:"market"`
}

// CloseRecord builds the history record for item closed at exit with the given realized profit.
func CloseRecord(item OpenItem, exit, profit decimal.Decimal, at time.Time) ClosedTradeRecord {
	rec := ClosedTradeRecord{
		ID:        item.ItemID(),
		Symbol:    item.ItemSymbol(),
		ExitPrice: exit,
		Profit:    profit,
		ClosedAt:  at.UTC(),
		Market:    item.Market(),
	}
	switch v := item.(type) {
	case Position:
		rec.Direction = v.Direction
		rec.EntryPrice = v.EntryPrice
		rec.Size = v.Lots
	case Holding:
		rec.Direction = types.DirectionBuy
		rec.EntryPrice = v.EntryPrice
		rec.Size = v.Quantity
	}
	return rec
}

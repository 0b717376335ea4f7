// Package positions keeps the open forex positions, open crypto holdings and
// closed-trade history of one account while an operation is being computed.
// A Ledger is loaded from an account snapshot, mutated, and written back
// through a single account patch.
package positions

import (
	"errors"
	"fmt"

	"zentum/internal/model"
	"zentum/internal/types"
)

var (
	ErrPositionNotFound  = errors.New("position not found")
	ErrDuplicatePosition = errors.New("duplicate position id")
)

type Ledger struct {
	positions []model.Position
	holdings  []model.Holding
	history   []model.ClosedTradeRecord
}

func FromAccount(acc model.Account) *Ledger {
	c := acc.Clone()
	return &Ledger{positions: c.ForexPositions, holdings: c.CryptoHoldings, history: c.History}
}

func (l *Ledger) Add(item model.OpenItem) error {
	if _, ok := l.find(item.Market(), item.ItemID()); ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePosition, item.ItemID())
	}
	switch v := item.(type) {
	case model.Position:
		l.positions = append(l.positions, v)
	case model.Holding:
		l.holdings = append(l.holdings, v)
	default:
		return fmt.Errorf("unsupported open item %T", item)
	}
	return nil
}

// Remove drops the item with id from the list of the given market and returns it.
func (l *Ledger) Remove(market types.Market, id string) (model.OpenItem, error) {
	idx, ok := l.find(market, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	switch market {
	case types.MarketForex:
		p := l.positions[idx]
		l.positions = append(l.positions[:idx:idx], l.positions[idx+1:]...)
		return p, nil
	case types.MarketCrypto:
		h := l.holdings[idx]
		l.holdings = append(l.holdings[:idx:idx], l.holdings[idx+1:]...)
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
}

func (l *Ledger) Get(market types.Market, id string) (model.OpenItem, error) {
	idx, ok := l.find(market, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	if market == types.MarketForex {
		return l.positions[idx], nil
	}
	return l.holdings[idx], nil
}

// AppendHistory records a closed trade. History is newest first.
func (l *Ledger) AppendHistory(rec model.ClosedTradeRecord) {
	next := make([]model.ClosedTradeRecord, 0, len(l.history)+1)
	next = append(next, rec)
	l.history = append(next, l.history...)
}

func (l *Ledger) Positions() []model.Position {
	return append([]model.Position(nil), l.positions...)
}

func (l *Ledger) Holdings() []model.Holding {
	return append([]model.Holding(nil), l.holdings...)
}

func (l *Ledger) History() []model.ClosedTradeRecord {
	return append([]model.ClosedTradeRecord(nil), l.history...)
}

func (l *Ledger) find(market types.Market, id string) (int, bool) {
	switch market {
	case types.MarketForex:
		for i, p := range l.positions {
			if p.ID == id {
				return i, true
			}
		}
	case types.MarketCrypto:
		for i, h := range l.holdings {
			if h.ID == id {
				return i, true
			}
		}
	}
	return -1, false
}

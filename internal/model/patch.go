package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountPatch is a partial account record. Nil fields are left untouched.
// A non-nil Settlement is written in the same durable update as the fields.
type AccountPatch struct {
	ForexBalance   *decimal.Decimal
	CryptoBalance  *decimal.Decimal
	ForexPositions *[]Position
	CryptoHoldings *[]Holding
	History        *[]ClosedTradeRecord
	Settlement     *Settlement
}

func (p AccountPatch) WithForexBalance(v decimal.Decimal) AccountPatch {
	p.ForexBalance = &v
	return p
}

func (p AccountPatch) WithCryptoBalance(v decimal.Decimal) AccountPatch {
	p.CryptoBalance = &v
	return p
}

func (p AccountPatch) WithForexPositions(v []Position) AccountPatch {
	cp := append(make([]Position, 0, len(v)), v...)
	p.ForexPositions = &cp
	return p
}

func (p AccountPatch) WithCryptoHoldings(v []Holding) AccountPatch {
	cp := append(make([]Holding, 0, len(v)), v...)
	p.CryptoHoldings = &cp
	return p
}

func (p AccountPatch) WithHistory(v []ClosedTradeRecord) AccountPatch {
	cp := append(make([]ClosedTradeRecord, 0, len(v)), v...)
	p.History = &cp
	return p
}

func (p AccountPatch) WithSettlement(s Settlement) AccountPatch {
	p.Settlement = &s
	return p
}

func (p AccountPatch) Empty() bool {
	return p.ForexBalance == nil && p.CryptoBalance == nil && p.ForexPositions == nil &&
		p.CryptoHoldings == nil && p.History == nil && p.Settlement == nil
}

// Fields lists the account columns the patch writes.
func (p AccountPatch) Fields() []string {
	out := make([]string, 0, 5)
	if p.ForexBalance != nil {
		out = append(out, "forex_balance")
	}
	if p.CryptoBalance != nil {
		out = append(out, "crypto_balance")
	}
	if p.ForexPositions != nil {
		out = append(out, "forex_positions")
	}
	if p.CryptoHoldings != nil {
		out = append(out, "crypto_holdings")
	}
	if p.History != nil {
		out = append(out, "history")
	}
	return out
}

// Apply returns the post-patch record with its version advanced.
func (p AccountPatch) Apply(a Account, now time.Time) Account {
	out := a.Clone()
	if p.ForexBalance != nil {
		out.ForexBalance = *p.ForexBalance
	}
	if p.CryptoBalance != nil {
		out.CryptoBalance = *p.CryptoBalance
	}
	if p.ForexPositions != nil {
		out.ForexPositions = append(make([]Position, 0, len(*p.ForexPositions)), *p.ForexPositions...)
	}
	if p.CryptoHoldings != nil {
		out.CryptoHoldings = append(make([]Holding, 0, len(*p.CryptoHoldings)), *p.CryptoHoldings...)
	}
	if p.History != nil {
		out.History = append(make([]ClosedTradeRecord, 0, len(*p.History)), *p.History...)
	}
	out.Version = a.Version + 1
	out.UpdatedAt = now.UTC()
	return out
}

package model

import (
	"time"

	"zentum/internal/types"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID             string              `json:"id"`
	Email          string              `json:"email"`
	DisplayName    string              `json:"display_name"`
	Role           types.Role          `json:"role"`
	ForexBalance   decimal.Decimal     `json:"forex_balance"`
	CryptoBalance  decimal.Decimal     `json:"crypto_balance"`
	ForexPositions []Position          `json:"forex_positions"`
	CryptoHoldings []Holding           `json:"crypto_holdings"`
	History        []ClosedTradeRecord `json:"history"`
	Version        int64               `json:"version"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// Clone returns a copy that shares no slice backing arrays with a.
func (a Account) Clone() Account {
	out := a
	out.ForexPositions = append(make([]Position, 0, len(a.ForexPositions)), a.ForexPositions...)
	out.CryptoHoldings = append(make([]Holding, 0, len(a.CryptoHoldings)), a.CryptoHoldings...)
	out.History = append(make([]ClosedTradeRecord, 0, len(a.History)), a.History...)
	return out
}

// Balance returns the balance backing the given wallet.
func (a Account) Balance(w types.Wallet) decimal.Decimal {
	if w == types.WalletForex {
		return a.ForexBalance
	}
	return a.CryptoBalance
}

func (a Account) IsAdmin() bool {
	return a.Role == types.RoleAdmin
}

// Package accounts serves account reads for their owners and the admin
// console's account table and balance overrides.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"zentum/internal/ledger"
	"zentum/internal/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidBalance = errors.New("invalid balance")

type AccountLedger interface {
	Account(ctx context.Context, id string) (model.Account, error)
	Accounts(ctx context.Context) ([]model.Account, error)
	Update(ctx context.Context, id string, fn ledger.MutateFunc) (model.Account, error)
}

type Service struct {
	ledger AccountLedger
	log    *zap.Logger
}

func NewService(l AccountLedger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{ledger: l, log: log.Named("accounts")}
}

func (s *Service) Get(ctx context.Context, accountID string) (model.Account, error) {
	return s.ledger.Account(ctx, accountID)
}

// History returns up to limit closed trades, newest first. A limit of zero
// returns everything.
func (s *Service) History(ctx context.Context, accountID string, limit int) ([]model.ClosedTradeRecord, error) {
	acc, err := s.ledger.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	h := acc.History
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return append([]model.ClosedTradeRecord{}, h...), nil
}

// List returns every account except the caller's own.
func (s *Service) List(ctx context.Context, callerID string) ([]model.Account, error) {
	all, err := s.ledger.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Account, 0, len(all))
	for _, a := range all {
		if a.ID == callerID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type BalanceOverride struct {
	Forex  *decimal.Decimal
	Crypto *decimal.Decimal
}

// SetBalances overwrites wallet balances from the admin console. Open
// positions and history are left alone.
func (s *Service) SetBalances(ctx context.Context, adminID, accountID string, o BalanceOverride) (model.Account, error) {
	if o.Forex == nil && o.Crypto == nil {
		return model.Account{}, fmt.Errorf("%w: nothing to change", ErrInvalidBalance)
	}
	for _, v := range []*decimal.Decimal{o.Forex, o.Crypto} {
		if v != nil && v.IsNegative() {
			return model.Account{}, fmt.Errorf("%w: must not be negative", ErrInvalidBalance)
		}
	}
	acc, err := s.ledger.Update(ctx, accountID, func(model.Account) (model.AccountPatch, error) {
		var p model.AccountPatch
		if o.Forex != nil {
			p = p.WithForexBalance(*o.Forex)
		}
		if o.Crypto != nil {
			p = p.WithCryptoBalance(*o.Crypto)
		}
		return p, nil
	})
	if err != nil {
		return model.Account{}, err
	}
	s.log.Info("balances overridden",
		zap.String("admin_id", adminID),
		zap.String("account_id", accountID),
		zap.String("forex", acc.ForexBalance.String()),
		zap.String("crypto", acc.CryptoBalance.String()),
	)
	return acc, nil
}

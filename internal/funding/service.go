// Package funding runs the deposit and withdrawal request queue. Users submit
// requests; an administrator approves or rejects each one exactly once.
package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"zentum/internal/ids"
	"zentum/internal/ledger"
	"zentum/internal/model"
	"zentum/internal/storage"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrRequestNotFound     = errors.New("funding request not found")
	ErrRequestProcessed    = errors.New("funding request already processed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidRequest      = errors.New("invalid funding request")
)

const minAddressLen = 10

// WithdrawalPolicy decides what an approval does when the wallet no longer
// covers the requested amount.
type WithdrawalPolicy string

const (
	PolicyReject WithdrawalPolicy = "reject"
	PolicyClamp  WithdrawalPolicy = "clamp"
	PolicyAllow  WithdrawalPolicy = "allow"
)

func ParseWithdrawalPolicy(s string) (WithdrawalPolicy, error) {
	switch p := WithdrawalPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyReject, nil
	case PolicyReject, PolicyClamp, PolicyAllow:
		return p, nil
	default:
		return "", fmt.Errorf("unknown withdrawal policy %q", s)
	}
}

type Store interface {
	CreateRequest(ctx context.Context, req model.FundingRequest) error
	GetRequest(ctx context.Context, id string) (model.FundingRequest, error)
	ListRequests(ctx context.Context, f storage.RequestFilter) ([]model.FundingRequest, error)
	SettleRequest(ctx context.Context, s model.Settlement) (model.FundingRequest, error)
}

type AccountLedger interface {
	Account(ctx context.Context, id string) (model.Account, error)
	Update(ctx context.Context, id string, fn ledger.MutateFunc) (model.Account, error)
}

type Service struct {
	store  Store
	ledger AccountLedger
	policy WithdrawalPolicy
	now    func() time.Time
	newID  func() string
	log    *zap.Logger

	subMu sync.RWMutex
	subs  []func(model.FundingRequest)
}

func NewService(store Store, l AccountLedger, policy WithdrawalPolicy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if policy == "" {
		policy = PolicyReject
	}
	return &Service{
		store:  store,
		ledger: l,
		policy: policy,
		now:    time.Now,
		newID:  ids.New,
		log:    log.Named("funding"),
	}
}

// OnChange registers fn to receive every submitted or settled request.
func (s *Service) OnChange(fn func(model.FundingRequest)) {
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Service) SubmitDeposit(ctx context.Context, accountID string, amount decimal.Decimal, coin string) (model.DepositRequest, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return model.DepositRequest{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" {
		coin = "USDT"
	}
	if _, err := s.ledger.Account(ctx, accountID); err != nil {
		return model.DepositRequest{}, err
	}
	req := model.DepositRequest{RequestHeader: s.header(accountID, amount), Coin: coin}
	if err := s.create(ctx, req); err != nil {
		return model.DepositRequest{}, err
	}
	return req, nil
}

type WithdrawalInput struct {
	AccountID string
	Amount    decimal.Decimal
	Wallet    types.Wallet
	Address   string
	Network   types.Network
}

func (s *Service) SubmitWithdrawal(ctx context.Context, in WithdrawalInput) (model.WithdrawalRequest, error) {
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return model.WithdrawalRequest{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if in.Wallet == "" {
		in.Wallet = types.WalletCrypto
	}
	if !in.Wallet.Valid() {
		return model.WithdrawalRequest{}, fmt.Errorf("%w: wallet must be forex or crypto", ErrInvalidRequest)
	}
	in.Network = types.Network(strings.ToUpper(strings.TrimSpace(string(in.Network))))
	if in.Network == "" {
		in.Network = types.NetworkTRC20
	}
	if !in.Network.Valid() {
		return model.WithdrawalRequest{}, fmt.Errorf("%w: network must be TRC20 or ERC20", ErrInvalidRequest)
	}
	in.Address = strings.TrimSpace(in.Address)
	if len(in.Address) < minAddressLen {
		return model.WithdrawalRequest{}, fmt.Errorf("%w: address must be at least %d characters", ErrInvalidRequest, minAddressLen)
	}
	acc, err := s.ledger.Account(ctx, in.AccountID)
	if err != nil {
		return model.WithdrawalRequest{}, err
	}
	if bal := acc.Balance(in.Wallet); in.Amount.GreaterThan(bal) {
		return model.WithdrawalRequest{}, fmt.Errorf("%w: %s wallet holds %s", ErrInsufficientBalance, in.Wallet, bal.StringFixed(2))
	}
	req := model.WithdrawalRequest{
		RequestHeader: s.header(in.AccountID, in.Amount),
		Wallet:        in.Wallet,
		Address:       in.Address,
		Network:       in.Network,
	}
	if err := s.create(ctx, req); err != nil {
		return model.WithdrawalRequest{}, err
	}
	return req, nil
}

// Approve applies the request's balance change and marks it APPROVED in one
// account commit. A request that is no longer pending is left untouched.
func (s *Service) Approve(ctx context.Context, requestID, adminID string) (model.FundingRequest, error) {
	req, err := s.pending(ctx, requestID)
	if err != nil {
		return nil, err
	}
	h := req.Header()
	settlement := model.Settlement{
		RequestID: h.ID,
		Status:    types.RequestStatusApproved,
		DecidedBy: adminID,
		DecidedAt: s.now().UTC(),
	}
	_, err = s.ledger.Update(ctx, h.AccountID, func(acc model.Account) (model.AccountPatch, error) {
		switch r := req.(type) {
		case model.DepositRequest:
			return model.AccountPatch{}.
				WithCryptoBalance(acc.CryptoBalance.Add(r.Amount)).
				WithSettlement(settlement), nil
		case model.WithdrawalRequest:
			debit, err := s.debit(acc.Balance(r.Wallet), r.Amount)
			if err != nil {
				return model.AccountPatch{}, err
			}
			next := acc.Balance(r.Wallet).Sub(debit)
			p := model.AccountPatch{}.WithSettlement(settlement)
			if r.Wallet == types.WalletForex {
				return p.WithForexBalance(next), nil
			}
			return p.WithCryptoBalance(next), nil
		}
		return model.AccountPatch{}, fmt.Errorf("%w: unsupported request type %T", ErrInvalidRequest, req)
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	settled := model.Settle(req, settlement)
	s.log.Info("funding request approved",
		zap.String("request_id", h.ID),
		zap.String("account_id", h.AccountID),
		zap.String("kind", string(req.Kind())),
		zap.String("amount", h.Amount.String()),
		zap.String("admin_id", adminID),
	)
	s.notify(settled)
	return settled, nil
}

// Reject marks a pending request REJECTED. No balance changes.
func (s *Service) Reject(ctx context.Context, requestID, adminID, note string) (model.FundingRequest, error) {
	if _, err := s.pending(ctx, requestID); err != nil {
		return nil, err
	}
	settled, err := s.store.SettleRequest(ctx, model.Settlement{
		RequestID: requestID,
		Status:    types.RequestStatusRejected,
		DecidedBy: adminID,
		DecidedAt: s.now().UTC(),
		Note:      strings.TrimSpace(note),
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	s.log.Info("funding request rejected",
		zap.String("request_id", requestID),
		zap.String("account_id", settled.Header().AccountID),
		zap.String("admin_id", adminID),
	)
	s.notify(settled)
	return settled, nil
}

func (s *Service) Get(ctx context.Context, requestID string) (model.FundingRequest, error) {
	if !ids.Valid(requestID) {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return req, nil
}

// Pending lists requests awaiting a decision, newest first. An empty kind
// lists both kinds.
func (s *Service) Pending(ctx context.Context, kind types.RequestKind) ([]model.FundingRequest, error) {
	return s.List(ctx, storage.RequestFilter{Kind: kind, Status: types.RequestStatusPending})
}

func (s *Service) ListForAccount(ctx context.Context, accountID string, limit int) ([]model.FundingRequest, error) {
	return s.List(ctx, storage.RequestFilter{AccountID: accountID, Limit: limit})
}

func (s *Service) List(ctx context.Context, f storage.RequestFilter) ([]model.FundingRequest, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, f.Kind)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, f.Status)
	}
	return s.store.ListRequests(ctx, f)
}

func (s *Service) debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	switch s.policy {
	case PolicyAllow:
		return amount, nil
	case PolicyClamp:
		if balance.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, nil
		}
		return decimal.Min(amount, balance), nil
	default:
		if amount.GreaterThan(balance) {
			return decimal.Zero, fmt.Errorf("%w: balance %s, requested %s",
				ErrInsufficientBalance, balance.StringFixed(2), amount.StringFixed(2))
		}
		return amount, nil
	}
}

func (s *Service) pending(ctx context.Context, requestID string) (model.FundingRequest, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Header().Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRequestProcessed, requestID, req.Header().Status)
	}
	return req, nil
}

func (s *Service) header(accountID string, amount decimal.Decimal) model.RequestHeader {
	return model.RequestHeader{
		ID:        s.newID(),
		AccountID: accountID,
		Amount:    amount,
		Status:    types.RequestStatusPending,
		CreatedAt: s.now().UTC(),
	}
}

func (s *Service) create(ctx context.Context, req model.FundingRequest) error {
	if err := s.store.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, req.Header().AccountID)
		}
		return fmt.Errorf("create funding request: %w", err)
	}
	h := req.Header()
	s.log.Info("funding request submitted",
		zap.String("request_id", h.ID),
		zap.String("account_id", h.AccountID),
		zap.String("kind", string(req.Kind())),
		zap.String("amount", h.Amount.String()),
	)
	s.notify(req)
	return nil
}

func (s *Service) notify(req model.FundingRequest) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(req)
	}
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrRequestNotPending):
		return fmt.Errorf("%w: %v", ErrRequestProcessed, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrRequestNotFound, err)
	}
	return err
}

package model

import (
	"time"

	"zentum/internal/types"

	"github.com/shopspring/decimal"
)

// FundingRequest is either a DepositRequest or a WithdrawalRequest.
type FundingRequest interface {
	Header() RequestHeader
	Kind() types.RequestKind
	fundingRequest()
}

type RequestHeader struct {
	ID        string              `json:"id"`
	AccountID string              `json:"account_id"`
	Amount    decimal.Decimal     `json:"amount"`
	Status    types.RequestStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	DecidedAt *time.Time          `json:"decided_at,omitempty"`
	DecidedBy string              `json:"decided_by,omitempty"`
	Note      string              `json:"note,omitempty"`
}

type DepositRequest struct {
	RequestHeader
	Coin string `json:"coin"`
}

func (r DepositRequest) Header() RequestHeader { return r.RequestHeader }
func (DepositRequest) Kind() types.RequestKind { return types.RequestKindDeposit }
func (DepositRequest) fundingRequest()         {}

type WithdrawalRequest struct {
	RequestHeader
	Wallet  types.Wallet  `json:"wallet"`
	Address string        `json:"address"`
	Network types.Network `json:"network"`
}

func (r WithdrawalRequest) Header() RequestHeader { return r.RequestHeader }
func (WithdrawalRequest) Kind() types.RequestKind { return types.RequestKindWithdrawal }
func (WithdrawalRequest) fundingRequest()         {}

// Settlement moves a pending request to a terminal status.
type Settlement struct {
	RequestID string
	Status    types.RequestStatus
	DecidedBy string
	DecidedAt time.Time
	Note      string
}

// Settle returns req with the settlement's terminal fields applied.
func Settle(req FundingRequest, s Settlement) FundingRequest {
	at := s.DecidedAt.UTC()
	apply := func(h RequestHeader) RequestHeader {
		h.Status = s.Status
		h.DecidedAt = &at
		h.DecidedBy = s.DecidedBy
		h.Note = s.Note
		return h
	}
	switch v := req.(type) {
	case DepositRequest:
		v.RequestHeader = apply(v.RequestHeader)
		return v
	case WithdrawalRequest:
		v.RequestHeader = apply(v.RequestHeader)
		return v
	}
	return req
}

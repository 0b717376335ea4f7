package types

type Role string

type Direction string

type Market string

type RequestKind string

type RequestStatus string

type Wallet string

type Network string

type CloseScope string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

const (
	MarketForex  Market = "FOREX"
	MarketCrypto Market = "CRYPTO"
)

const (
	RequestKindDeposit    RequestKind = "deposit"
	RequestKindWithdrawal RequestKind = "withdrawal"
)

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

const (
	WalletForex  Wallet = "forex"
	WalletCrypto Wallet = "crypto"
)

const (
	NetworkTRC20 Network = "TRC20"
	NetworkERC20 Network = "ERC20"
)

const (
	CloseScopeAll    CloseScope = "all"
	CloseScopeProfit CloseScope = "profit"
	CloseScopeLoss   CloseScope = "loss"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (d Direction) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

func (k RequestKind) Valid() bool {
	return k == RequestKindDeposit || k == RequestKindWithdrawal
}

func (s RequestStatus) Valid() bool {
	return s == RequestStatusPending || s.Terminal()
}

func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

func (w Wallet) Valid() bool {
	return w == WalletForex || w == WalletCrypto
}

func (n Network) Valid() bool {
	return n == NetworkTRC20 || n == NetworkERC20
}

func (c CloseScope) Valid() bool {
	return c == CloseScopeAll || c == CloseScopeProfit || c == CloseScopeLoss
}

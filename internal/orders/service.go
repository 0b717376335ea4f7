package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zentum/internal/ids"
	"zentum/internal/ledger"
	"zentum/internal/margin"
	"zentum/internal/marketdata"
	"zentum/internal/model"
	"zentum/internal/positions"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrMarketClosed       = errors.New("market is closed")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrQuoteUnavailable   = errors.New("quote not available yet")
	ErrUnknownInstrument  = errors.New("unknown instrument")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrPositionNotFound   = positions.ErrPositionNotFound
)

type AccountLedger interface {
	Account(ctx context.Context, id string) (model.Account, error)
	Update(ctx context.Context, id string, fn ledger.MutateFunc) (model.Account, error)
}

type QuoteProvider interface {
	Quote(symbol string) (marketdata.Quote, bool)
}

type Calendar interface {
	IsOpen(m types.Market, t time.Time) bool
}

type Service struct {
	ledger   AccountLedger
	quotes   QuoteProvider
	catalog  *marketdata.Catalog
	calendar Calendar
	calc     margin.Calculator
	now      func() time.Time
	newID    func() string
	log      *zap.Logger
}

func NewService(l AccountLedger, quotes QuoteProvider, catalog *marketdata.Catalog, calendar Calendar, leverage decimal.Decimal, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	price := func(symbol string) (decimal.Decimal, bool) {
		q, ok := quotes.Quote(symbol)
		return q.Price, ok
	}
	return &Service{
		ledger:   l,
		quotes:   quotes,
		catalog:  catalog,
		calendar: calendar,
		calc:     margin.NewCalculator(leverage, catalog.ContractSize, price),
		now:      time.Now,
		newID:    ids.Trade,
		log:      log.Named("orders"),
	}
}

type OpenPositionRequest struct {
	AccountID string
	Symbol    string
	Direction types.Direction
	Lots      decimal.Decimal
}

// OpenPosition reserves margin for a new forex position at the current quote.
// The balance is not touched.
func (s *Service) OpenPosition(ctx context.Context, req OpenPositionRequest) (model.Position, error) {
	inst, err := s.instrument(req.Symbol, types.MarketForex)
	if err != nil {
		return model.Position{}, err
	}
	if !req.Direction.Valid() {
		return model.Position{}, fmt.Errorf("%w: direction must be BUY or SELL", ErrInvalidOrder)
	}
	if req.Lots.LessThanOrEqual(decimal.Zero) {
		return model.Position{}, fmt.Errorf("%w: lots must be positive", ErrInvalidOrder)
	}
	now := s.now().UTC()
	if !s.calendar.IsOpen(types.MarketForex, now) {
		return model.Position{}, ErrMarketClosed
	}

	var opened model.Position
	_, err = s.ledger.Update(ctx, req.AccountID, func(acc model.Account) (model.AccountPatch, error) {
		if acc.ForexBalance.LessThanOrEqual(decimal.Zero) {
			return model.AccountPatch{}, ErrInsufficientFunds
		}
		q, ok := s.quotes.Quote(inst.Symbol)
		if !ok {
			return model.AccountPatch{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, inst.Symbol)
		}
		summary := s.calc.Summarize(acc.ForexBalance, acc.ForexPositions)
		required := s.calc.Required(inst.Symbol, req.Lots)
		if summary.FreeMargin.LessThan(required) {
			return model.AccountPatch{}, fmt.Errorf("%w: free margin %s, required %s",
				ErrInsufficientMargin, summary.FreeMargin.StringFixed(2), required.StringFixed(2))
		}
		pos := model.Position{
			ID:         s.newID(),
			Symbol:     inst.Symbol,
			Direction:  req.Direction,
			EntryPrice: q.Price,
			Lots:       req.Lots,
			OpenedAt:   now,
		}
		l := positions.FromAccount(acc)
		if err := l.Add(pos); err != nil {
			return model.AccountPatch{}, err
		}
		opened = pos
		return model.AccountPatch{}.WithForexPositions(l.Positions()), nil
	})
	if err != nil {
		return model.Position{}, err
	}
	s.log.Info("position opened",
		zap.String("account_id", req.AccountID),
		zap.String("position_id", opened.ID),
		zap.String("symbol", opened.Symbol),
		zap.String("direction", string(opened.Direction)),
		zap.String("lots", opened.Lots.String()),
		zap.String("entry", opened.EntryPrice.String()),
	)
	return opened, nil
}

// ClosePosition realizes the floating profit of a position at the current
// quote. Balance, the open list and history change in one commit.
func (s *Service) ClosePosition(ctx context.Context, accountID, positionID string) (model.ClosedTradeRecord, error) {
	var rec model.ClosedTradeRecord
	_, err := s.ledger.Update(ctx, accountID, func(acc model.Account) (model.AccountPatch, error) {
		l := positions.FromAccount(acc)
		item, err := l.Remove(types.MarketForex, positionID)
		if err != nil {
			return model.AccountPatch{}, err
		}
		p := item.(model.Position)
		q, ok := s.quotes.Quote(p.Symbol)
		if !ok {
			return model.AccountPatch{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, p.Symbol)
		}
		profit := margin.FloatingPL(p.Direction, p.EntryPrice, q.Price, p.Lots, s.catalog.ContractSize(p.Symbol))
		rec = model.CloseRecord(p, q.Price, profit, s.now())
		l.AppendHistory(rec)
		return model.AccountPatch{}.
			WithForexBalance(acc.ForexBalance.Add(profit)).
			WithForexPositions(l.Positions()).
			WithHistory(l.History()), nil
	})
	if err != nil {
		return model.ClosedTradeRecord{}, err
	}
	s.log.Info("position closed",
		zap.String("account_id", accountID),
		zap.String("position_id", positionID),
		zap.String("exit", rec.ExitPrice.String()),
		zap.String("profit", rec.Profit.String()),
	)
	return rec, nil
}

type CloseResult struct {
	Scope   types.CloseScope          `json:"scope"`
	Total   int                       `json:"total"`
	Closed  int                       `json:"closed"`
	Failed  int                       `json:"failed"`
	Records []model.ClosedTradeRecord `json:"records"`
}

// CloseByScope closes every open forex position matching scope, each in its own commit.
func (s *Service) CloseByScope(ctx context.Context, accountID string, scope types.CloseScope) (CloseResult, error) {
	scope = types.CloseScope(strings.ToLower(strings.TrimSpace(string(scope))))
	if scope == "" {
		scope = types.CloseScopeAll
	}
	if !scope.Valid() {
		return CloseResult{}, fmt.Errorf("%w: scope must be all, profit or loss", ErrInvalidOrder)
	}
	acc, err := s.ledger.Account(ctx, accountID)
	if err != nil {
		return CloseResult{}, err
	}

	selected := make([]string, 0, len(acc.ForexPositions))
	for _, p := range acc.ForexPositions {
		pl := s.calc.PositionPL(p)
		switch scope {
		case types.CloseScopeAll:
			selected = append(selected, p.ID)
		case types.CloseScopeProfit:
			if pl.GreaterThan(decimal.Zero) {
				selected = append(selected, p.ID)
			}
		case types.CloseScopeLoss:
			if pl.LessThan(decimal.Zero) {
				selected = append(selected, p.ID)
			}
		}
	}

	res := CloseResult{Scope: scope, Total: len(selected), Records: make([]model.ClosedTradeRecord, 0, len(selected))}
	for _, id := range selected {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rec, err := s.ClosePosition(ctx, accountID, id)
		if err != nil {
			s.log.Warn("scoped close failed", zap.String("account_id", accountID), zap.String("position_id", id), zap.Error(err))
			res.Failed++
			if errors.Is(err, ledger.ErrCommitFailed) {
				// Outcome unknown; stop so the caller re-reads before retrying.
				return res, err
			}
			continue
		}
		res.Closed++
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

type BuyRequest struct {
	AccountID string
	Symbol    string
	Quantity  decimal.Decimal
}

// BuyHolding pays for a crypto holding from the crypto balance at the current quote.
func (s *Service) BuyHolding(ctx context.Context, req BuyRequest) (model.Holding, error) {
	inst, err := s.instrument(req.Symbol, types.MarketCrypto)
	if err != nil {
		return model.Holding{}, err
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return model.Holding{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	now := s.now().UTC()
	if !s.calendar.IsOpen(types.MarketCrypto, now) {
		return model.Holding{}, ErrMarketClosed
	}

	var bought model.Holding
	_, err = s.ledger.Update(ctx, req.AccountID, func(acc model.Account) (model.AccountPatch, error) {
		if acc.CryptoBalance.LessThanOrEqual(decimal.Zero) {
			return model.AccountPatch{}, ErrInsufficientFunds
		}
		q, ok := s.quotes.Quote(inst.Symbol)
		if !ok {
			return model.AccountPatch{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, inst.Symbol)
		}
		cost := req.Quantity.Mul(q.Price)
		if cost.GreaterThan(acc.CryptoBalance) {
			return model.AccountPatch{}, fmt.Errorf("%w: cost %s exceeds crypto balance %s",
				ErrInsufficientFunds, cost.StringFixed(2), acc.CryptoBalance.StringFixed(2))
		}
		h := model.Holding{
			ID:         s.newID(),
			Symbol:     inst.Symbol,
			Quantity:   req.Quantity,
			EntryPrice: q.Price,
			OpenedAt:   now,
		}
		l := positions.FromAccount(acc)
		if err := l.Add(h); err != nil {
			return model.AccountPatch{}, err
		}
		bought = h
		return model.AccountPatch{}.
			WithCryptoBalance(acc.CryptoBalance.Sub(cost)).
			WithCryptoHoldings(l.Holdings()), nil
	})
	if err != nil {
		return model.Holding{}, err
	}
	s.log.Info("holding bought",
		zap.String("account_id", req.AccountID),
		zap.String("holding_id", bought.ID),
		zap.String("symbol", bought.Symbol),
		zap.String("quantity", bought.Quantity.String()),
		zap.String("price", bought.EntryPrice.String()),
	)
	return bought, nil
}

// SellHolding credits the proceeds of a holding at the current quote and records the trade.
func (s *Service) SellHolding(ctx context.Context, accountID, holdingID string) (model.ClosedTradeRecord, error) {
	var rec model.ClosedTradeRecord
	_, err := s.ledger.Update(ctx, accountID, func(acc model.Account) (model.AccountPatch, error) {
		l := positions.FromAccount(acc)
		item, err := l.Remove(types.MarketCrypto, holdingID)
		if err != nil {
			return model.AccountPatch{}, err
		}
		h := item.(model.Holding)
		q, ok := s.quotes.Quote(h.Symbol)
		if !ok {
			return model.AccountPatch{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, h.Symbol)
		}
		proceeds := h.Quantity.Mul(q.Price)
		profit := q.Price.Sub(h.EntryPrice).Mul(h.Quantity)
		rec = model.CloseRecord(h, q.Price, profit, s.now())
		l.AppendHistory(rec)
		return model.AccountPatch{}.
			WithCryptoBalance(acc.CryptoBalance.Add(proceeds)).
			WithCryptoHoldings(l.Holdings()).
			WithHistory(l.History()), nil
	})
	if err != nil {
		return model.ClosedTradeRecord{}, err
	}
	s.log.Info("holding sold",
		zap.String("account_id", accountID),
		zap.String("holding_id", holdingID),
		zap.String("profit", rec.Profit.String()),
	)
	return rec, nil
}

type PositionView struct {
	model.Position
	CurrentPrice   *decimal.Decimal `json:"current_price,omitempty"`
	FloatingPL     decimal.Decimal  `json:"floating_pl"`
	RequiredMargin decimal.Decimal  `json:"required_margin"`
}

type HoldingView struct {
	model.Holding
	CurrentPrice *decimal.Decimal `json:"current_price,omitempty"`
	MarketValue  decimal.Decimal  `json:"market_value"`
}

type AccountMetrics struct {
	AccountID string                 `json:"account_id"`
	Forex     margin.Summary         `json:"forex"`
	Crypto    margin.HoldingsSummary `json:"crypto"`
	Positions []PositionView         `json:"positions"`
	Holdings  []HoldingView          `json:"holdings"`
	Version   int64                  `json:"version"`
}

func (s *Service) Metrics(ctx context.Context, accountID string) (AccountMetrics, error) {
	acc, err := s.ledger.Account(ctx, accountID)
	if err != nil {
		return AccountMetrics{}, err
	}
	return s.MetricsFor(acc), nil
}

// MetricsFor values an already loaded account at the current quotes.
func (s *Service) MetricsFor(acc model.Account) AccountMetrics {
	out := AccountMetrics{
		AccountID: acc.ID,
		Forex:     s.calc.Summarize(acc.ForexBalance, acc.ForexPositions),
		Crypto:    s.calc.SummarizeHoldings(acc.CryptoBalance, acc.CryptoHoldings),
		Positions: make([]PositionView, 0, len(acc.ForexPositions)),
		Holdings:  make([]HoldingView, 0, len(acc.CryptoHoldings)),
		Version:   acc.Version,
	}
	for _, p := range acc.ForexPositions {
		v := PositionView{Position: p, FloatingPL: s.calc.PositionPL(p), RequiredMargin: s.calc.Required(p.Symbol, p.Lots)}
		if q, ok := s.quotes.Quote(p.Symbol); ok {
			px := q.Price
			v.CurrentPrice = &px
		}
		out.Positions = append(out.Positions, v)
	}
	for _, h := range acc.CryptoHoldings {
		v := HoldingView{Holding: h, MarketValue: h.Quantity.Mul(h.EntryPrice)}
		if q, ok := s.quotes.Quote(h.Symbol); ok {
			px := q.Price
			v.CurrentPrice = &px
			v.MarketValue = h.Quantity.Mul(px)
		}
		out.Holdings = append(out.Holdings, v)
	}
	return out
}

func (s *Service) instrument(symbol string, m types.Market) (marketdata.Instrument, error) {
	inst, ok := s.catalog.Lookup(symbol)
	if !ok {
		return marketdata.Instrument{}, fmt.Errorf("%w: %q", ErrUnknownInstrument, symbol)
	}
	if inst.Market != m {
		return marketdata.Instrument{}, fmt.Errorf("%w: %s is not a %s instrument", ErrInvalidOrder, inst.Symbol, strings.ToLower(string(m)))
	}
	return inst, nil
}

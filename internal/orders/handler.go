package orders

import (
	"errors"
	"net/http"
	"strings"

	"zentum/internal/httputil"
	"zentum/internal/ledger"
	"zentum/internal/storage"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type openPositionRequest struct {
	Symbol    string `json:"symbol"`
	Direction string `json:"direction"`
	Lots      string `json:"lots"`
}

func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request, accountID string) {
	var req openPositionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	lots, err := decimal.NewFromString(strings.TrimSpace(req.Lots))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid lots"})
		return
	}
	pos, err := h.svc.OpenPosition(r.Context(), OpenPositionRequest{
		AccountID: accountID,
		Symbol:    req.Symbol,
		Direction: types.Direction(strings.ToUpper(strings.TrimSpace(req.Direction))),
		Lots:      lots,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pos)
}

func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request, accountID, positionID string) {
	rec, err := h.svc.ClosePosition(r.Context(), accountID, positionID)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

type closeManyRequest struct {
	Scope string `json:"scope"`
}

func (h *Handler) CloseMany(w http.ResponseWriter, r *http.Request, accountID string) {
	var req closeManyRequest
	if r.ContentLength != 0 {
		if err := httputil.ReadJSON(r, &req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
	}
	res, err := h.svc.CloseByScope(r.Context(), accountID, types.CloseScope(req.Scope))
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type buyRequest struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
}

func (h *Handler) BuyHolding(w http.ResponseWriter, r *http.Request, accountID string) {
	var req buyRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	qty, err := decimal.NewFromString(strings.TrimSpace(req.Quantity))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid quantity"})
		return
	}
	hold, err := h.svc.BuyHolding(r.Context(), BuyRequest{AccountID: accountID, Symbol: req.Symbol, Quantity: qty})
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, hold)
}

func (h *Handler) SellHolding(w http.ResponseWriter, r *http.Request, accountID, holdingID string) {
	rec, err := h.svc.SellHolding(r.Context(), accountID, holdingID)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request, accountID string) {
	m, err := h.svc.Metrics(r.Context(), accountID)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

// WriteError maps trading and ledger errors to a status and a stable code.
func WriteError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	var ce *ledger.CommitError
	switch {
	case errors.Is(err, ErrInvalidOrder):
		status, code = http.StatusBadRequest, "invalid_order"
	case errors.Is(err, ErrUnknownInstrument):
		status, code = http.StatusBadRequest, "unknown_instrument"
	case errors.Is(err, ErrPositionNotFound):
		status, code = http.StatusNotFound, "position_not_found"
	case errors.Is(err, ledger.ErrAccountNotFound):
		status, code = http.StatusNotFound, "account_not_found"
	case errors.Is(err, ErrMarketClosed):
		status, code = http.StatusConflict, "market_closed"
	case errors.Is(err, ErrInsufficientFunds):
		status, code = http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, ErrInsufficientMargin):
		status, code = http.StatusUnprocessableEntity, "insufficient_margin"
	case errors.Is(err, storage.ErrVersionConflict):
		status, code = http.StatusConflict, "version_conflict"
	case errors.Is(err, ErrQuoteUnavailable):
		status, code = http.StatusServiceUnavailable, "quote_unavailable"
	case errors.As(err, &ce) && ce.Timeout():
		status, code = http.StatusGatewayTimeout, "commit_timeout"
	case errors.Is(err, ledger.ErrCommitFailed):
		status, code = http.StatusServiceUnavailable, "commit_failed"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	httputil.WriteJSON(w, status, httputil.ErrorResponse{Error: msg, Code: code})
}

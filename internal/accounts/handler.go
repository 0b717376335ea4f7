package accounts

import (
	"errors"
	"net/http"
	"strings"

	"zentum/internal/httputil"
	"zentum/internal/ledger"

	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, accountID string) {
	acc, err := h.svc.Get(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request, accountID string) {
	items, err := h.svc.History(r.Context(), accountID, httputil.QueryInt(r, "limit", 100))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request, adminID string) {
	items, err := h.svc.List(r.Context(), adminID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

type balancesRequest struct {
	ForexBalance  *string `json:"forex_balance"`
	CryptoBalance *string `json:"crypto_balance"`
}

func (h *Handler) SetBalances(w http.ResponseWriter, r *http.Request, adminID, accountID string) {
	var req balancesRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	var o BalanceOverride
	for _, f := range []struct {
		raw *string
		dst **decimal.Decimal
		key string
	}{
		{req.ForexBalance, &o.Forex, "forex_balance"},
		{req.CryptoBalance, &o.Crypto, "crypto_balance"},
	} {
		if f.raw == nil {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(*f.raw))
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid " + f.key})
			return
		}
		*f.dst = &v
	}
	acc, err := h.svc.SetBalances(r.Context(), adminID, accountID, o)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, acc)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidBalance):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error(), Code: "invalid_balance"})
	case errors.Is(err, ledger.ErrAccountNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error(), Code: "account_not_found"})
	case errors.Is(err, ledger.ErrCommitFailed):
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: err.Error(), Code: "commit_failed"})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}

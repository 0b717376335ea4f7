package funding

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

type depositRequest struct {
	Amount string `json:"amount"`
	Coin   string `json:"coin"`
}

func (h *Handler) SubmitDeposit(w http.ResponseWriter, r *http.Request, accountID string) {
	var req depositRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	dep, err := h.svc.SubmitDeposit(r.Context(), accountID, amount, req.Coin)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dep)
}

type withdrawalRequest struct {
	Amount  string `json:"amount"`
	Wallet  string `json:"wallet"`
	Address string `json:"address"`
	Network string `json:"network"`
}

func (h *Handler) SubmitWithdrawal(w http.ResponseWriter, r *http.Request, accountID string) {
	var req withdrawalRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	wd, err := h.svc.SubmitWithdrawal(r.Context(), WithdrawalInput{
		AccountID: accountID,
		Amount:    amount,
		Wallet:    types.Wallet(strings.ToLower(strings.TrimSpace(req.Wallet))),
		Address:   req.Address,
		Network:   types.Network(req.Network),
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, wd)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request, accountID string) {
	items, err := h.svc.ListForAccount(r.Context(), accountID, httputil.QueryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

// List serves the admin queue. Defaults to pending requests of both kinds.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := types.RequestStatus(strings.ToUpper(strings.TrimSpace(q.Get("status"))))
	switch status {
	case "":
		status = types.RequestStatusPending
	case "ALL":
		status = ""
	}
	items, err := h.svc.List(r.Context(), storage.RequestFilter{
		AccountID: strings.TrimSpace(q.Get("account_id")),
		Kind:      types.RequestKind(strings.ToLower(strings.TrimSpace(q.Get("kind")))),
		Status:    status,
		Limit:     httputil.QueryInt(r, "limit", 200),
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request, adminID, requestID string) {
	req, err := h.svc.Approve(r.Context(), requestID, adminID)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

type rejectRequest struct {
	Note string `json:"note"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request, adminID, requestID string) {
	var body rejectRequest
	if r.ContentLength != 0 {
		if err := httputil.ReadJSON(r, &body); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
	}
	req, err := h.svc.Reject(r.Context(), requestID, adminID, body.Note)
	if err != nil {
		WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func WriteError(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	var ce *ledger.CommitError
	switch {
	case errors.Is(err, ErrInvalidRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrRequestNotFound):
		status, code = http.StatusNotFound, "request_not_found"
	case errors.Is(err, ledger.ErrAccountNotFound):
		status, code = http.StatusNotFound, "account_not_found"
	case errors.Is(err, ErrRequestProcessed):
		status, code = http.StatusConflict, "request_processed"
	case errors.Is(err, storage.ErrVersionConflict):
		status, code = http.StatusConflict, "version_conflict"
	case errors.Is(err, ErrInsufficientBalance):
		status, code = http.StatusUnprocessableEntity, "insufficient_balance"
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

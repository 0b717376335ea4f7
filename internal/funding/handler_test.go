package funding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zentum/internal/httputil"
	"zentum/internal/ledger"
	"zentum/internal/model"
	"zentum/internal/storage"
	"zentum/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type requestJSON struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount string `json:"amount"`
	Wallet string `json:"wallet"`
}

func TestHandlerDepositFlow(t *testing.T) {
	f := newFixture(t, PolicyReject, "0", "0")
	h := NewHandler(f.svc)

	rec := httptest.NewRecorder()
	h.SubmitDeposit(rec, httptest.NewRequest(http.MethodPost, "/v1/funding/deposits",
		strings.NewReader(`{"amount":"75.5","coin":"usdt"}`)), userID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created requestJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "PENDING", created.Status)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/requests?kind=deposit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var queue []requestJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queue))
	require.Len(t, queue, 1)
	assert.Equal(t, created.ID, queue[0].ID)

	rec = httptest.NewRecorder()
	h.Approve(rec, httptest.NewRequest(http.MethodPost, "/", nil), adminID, created.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Approve(rec, httptest.NewRequest(http.MethodPost, "/", nil), adminID, created.ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var er httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "request_processed", er.Code)

	assert.Equal(t, "75.50", f.account(t).CryptoBalance.StringFixed(2))
}

func TestHandlerWithdrawalErrors(t *testing.T) {
	f := newFixture(t, PolicyReject, "0", "10")
	h := NewHandler(f.svc)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad_amount", `{"amount":"ten","address":"` + address + `"}`, http.StatusBadRequest},
		{"short_address", `{"amount":"1","address":"abc"}`, http.StatusBadRequest},
		{"too_much", `{"amount":"11","address":"` + address + `"}`, http.StatusUnprocessableEntity},
		{"ok", `{"amount":"10","wallet":"CRYPTO","address":"` + address + `","network":"trc20"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.SubmitWithdrawal(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)), userID)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerReject(t *testing.T) {
	f := newFixture(t, PolicyReject, "0", "0")
	h := NewHandler(f.svc)
	dep, err := f.svc.SubmitDeposit(context.Background(), userID, d("3"), "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Reject(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"no transfer seen"}`)), adminID, dep.ID)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ListMine(rec, httptest.NewRequest(http.MethodGet, "/v1/funding/requests", nil), userID)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []requestJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, "REJECTED", mine[0].Status)

	rec = httptest.NewRecorder()
	h.Approve(rec, httptest.NewRequest(http.MethodPost, "/", nil), adminID, "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// stalledStore never finishes an account write.
type stalledStore struct {
	*storage.Memory
}

func (stalledStore) CommitAccount(ctx context.Context, _ string, _ int64, _ model.AccountPatch) (model.Account, error) {
	<-ctx.Done()
	return model.Account{}, ctx.Err()
}

func TestHandlerCommitTimeout(t *testing.T) {
	store := storage.NewMemory()
	require.NoError(t, store.CreateAccount(context.Background(), model.Account{
		ID: userID, Role: types.RoleUser, ForexBalance: d("0"), CryptoBalance: d("0"),
	}))
	l := ledger.NewSynchronizer(stalledStore{store}, ledger.Options{CommitTimeout: 20 * time.Millisecond})
	svc := NewService(store, l, PolicyReject, nil)
	dep, err := svc.SubmitDeposit(context.Background(), userID, d("10"), "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewHandler(svc).Approve(rec, httptest.NewRequest(http.MethodPost, "/", nil), adminID, dep.ID)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code, rec.Body.String())
	var er httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Equal(t, "commit_timeout", er.Code)

	stored, err := svc.Get(context.Background(), dep.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RequestStatusPending, stored.Header().Status)
}

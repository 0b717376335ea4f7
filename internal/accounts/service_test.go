package accounts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zentum/internal/ledger"
	"zentum/internal/model"
	"zentum/internal/storage"
	"zentum/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Service, *ledger.Synchronizer) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory()
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	for _, acc := range []model.Account{
		{ID: "admin", Email: "admin@example.com", Role: types.RoleAdmin},
		{ID: "u1", Email: "u1@example.com", Role: types.RoleUser, ForexBalance: decimal.NewFromInt(100),
			History: []model.ClosedTradeRecord{
				{ID: "t3", Symbol: "EURUSD", ClosedAt: now.Add(2 * time.Minute)},
				{ID: "t2", Symbol: "EURUSD", ClosedAt: now.Add(time.Minute)},
				{ID: "t1", Symbol: "EURUSD", ClosedAt: now},
			}},
		{ID: "u2", Email: "u2@example.com", Role: types.RoleUser},
	} {
		require.NoError(t, store.CreateAccount(ctx, acc))
	}
	l := ledger.NewSynchronizer(store, ledger.Options{})
	return NewService(l, nil), l
}

func TestListHidesCaller(t *testing.T) {
	svc, _ := setup(t)
	list, err := svc.List(context.Background(), "admin")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, ids)
}

func TestHistoryLimit(t *testing.T) {
	svc, _ := setup(t)
	h, err := svc.History(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, "t3", h[0].ID)

	all, err := svc.History(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetBalances(t *testing.T) {
	svc, l := setup(t)
	ctx := context.Background()
	crypto := decimal.NewFromInt(999999)

	acc, err := svc.SetBalances(ctx, "admin", "u1", BalanceOverride{Crypto: &crypto})
	require.NoError(t, err)
	assert.True(t, crypto.Equal(acc.CryptoBalance))
	assert.True(t, decimal.NewFromInt(100).Equal(acc.ForexBalance), "forex untouched")
	assert.Len(t, acc.History, 3)

	cached, err := l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, acc.Version, cached.Version)

	neg := decimal.NewFromInt(-1)
	_, err = svc.SetBalances(ctx, "admin", "u1", BalanceOverride{Forex: &neg})
	assert.ErrorIs(t, err, ErrInvalidBalance)
	_, err = svc.SetBalances(ctx, "admin", "u1", BalanceOverride{})
	assert.ErrorIs(t, err, ErrInvalidBalance)
	_, err = svc.SetBalances(ctx, "admin", "ghost", BalanceOverride{Crypto: &crypto})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestHandlerSetBalances(t *testing.T) {
	svc, _ := setup(t)
	h := NewHandler(svc)

	rec := httptest.NewRecorder()
	h.SetBalances(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"forex_balance":"2500.50"}`)), "admin", "u2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var acc model.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.Equal(t, "2500.50", acc.ForexBalance.StringFixed(2))

	rec = httptest.NewRecorder()
	h.SetBalances(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"forex_balance":"lots"}`)), "admin", "u2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/", nil), "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zentum/internal/accounts"
	"zentum/internal/auth"
	"zentum/internal/funding"
	"zentum/internal/health"
	"zentum/internal/ledger"
	"zentum/internal/marketdata"
	"zentum/internal/orders"
	"zentum/internal/sessions"
	"zentum/internal/storage"
	"zentum/internal/types"
	"zentum/internal/volatility"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminEmail = "admin@zentum.test"

type testServer struct {
	handler http.Handler
	feed    *marketdata.Feed
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	store := storage.NewMemory()
	sy := ledger.NewSynchronizer(store, ledger.Options{CommitTimeout: time.Second, MaxConflictRetries: 2})
	bus := marketdata.NewBus(16)
	feed := marketdata.NewFeed(bus, 0, nil)
	catalog := marketdata.DefaultCatalog()
	cal := sessions.DefaultCalendar()

	orderSvc := orders.NewService(sy, feed, catalog, cal, decimal.NewFromInt(5000), nil)
	fundingSvc := funding.NewService(store, sy, funding.PolicyReject, nil)
	authSvc := auth.NewService(store, "zentum-test", []byte("router-test-secret"), time.Hour, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, authSvc.EnsureAdmin(context.Background(), adminEmail, string(hash)))

	handler := NewRouter(RouterDeps{
		AuthHandler:     auth.NewHandler(authSvc),
		AccountsHandler: accounts.NewHandler(accounts.NewService(sy, nil)),
		OrderHandler:    orders.NewHandler(orderSvc),
		FundingHandler:  funding.NewHandler(fundingSvc),
		MarketHandler:   marketdata.NewHandler(feed, catalog),
		SessionsHandler: sessions.NewHandler(cal),
		HealthHandler:   health.NewHandler(nil, "memory", time.Now(), ":0", "internal", health.Gauges{}),
		Volatility:      volatility.NewHandler(volatility.NewStore(nil)),
		Tokens:          authSvc,
		WSHandler:       NewWSHandler(bus, authSvc, feed, orderSvc, "*", nil),
		RateLimiter:     limiter,
		Origin:          "*",
	})
	return &testServer{handler: handler, feed: feed}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) token(t *testing.T, path, body string, want int) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, path, "", body)
	require.Equal(t, want, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func TestRouterFundingAndTradingFlow(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token(t, "/v1/auth/register", `{"email":"trader@zentum.test","password":"secret1","display_name":"Trader"}`, http.StatusCreated)
	admin := s.token(t, "/v1/auth/login", `{"email":"`+adminEmail+`","password":"admin-pass"}`, http.StatusOK)

	rec := s.do(t, http.MethodPost, "/v1/funding/deposits", user, `{"amount":"1000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dep struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dep))
	assert.Equal(t, "PENDING", dep.Status)

	rec = s.do(t, http.MethodGet, "/v1/admin/requests", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), dep.ID)

	rec = s.do(t, http.MethodPost, "/v1/admin/requests/"+dep.ID+"/approve", admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/v1/admin/requests/"+dep.ID+"/approve", admin, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.feed.Set(marketdata.Quote{Symbol: "BTC", Price: decimal.RequireFromString("500")})
	rec = s.do(t, http.MethodPost, "/v1/crypto/holdings", user, `{"symbol":"BTC","quantity":"1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/v1/account", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var acc struct {
		CryptoBalance  decimal.Decimal   `json:"crypto_balance"`
		CryptoHoldings []json.RawMessage `json:"crypto_holdings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acc))
	assert.True(t, acc.CryptoBalance.Equal(decimal.NewFromInt(500)), acc.CryptoBalance.String())
	assert.Len(t, acc.CryptoHoldings, 1)
}

func TestRouterAuthorization(t *testing.T) {
	s := newTestServer(t, nil)
	user := s.token(t, "/v1/auth/register", `{"email":"a@zentum.test","password":"secret1"}`, http.StatusCreated)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/account", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/account", "garbage", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/v1/admin/accounts", user, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/v1/admin/requests/x/approve", user, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/v1/admin/volatility", user, `{"id":"high"}`).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/account/metrics", user, "").Code)
}

func TestRouterPublicEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.feed.Set(marketdata.Quote{Symbol: "EURUSD", Price: decimal.RequireFromString("1.1")})

	rec := s.do(t, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/v1/quotes/NOPE", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/v1/quotes/eur-usd", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/market/status", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/health/full", "", "").Code)
}

func TestRouterRateLimit(t *testing.T) {
	s := newTestServer(t, NewRateLimiter(0.001, 2))
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/quotes", "", "").Code)
	}
	rec := s.do(t, http.MethodGet, "/v1/quotes", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// health probes are not limited
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", "", "").Code)
}

func TestVisible(t *testing.T) {
	cases := []struct {
		name    string
		evt     marketdata.Event
		account string
		role    types.Role
		want    bool
	}{
		{"broadcast quote", marketdata.Event{Type: marketdata.EventQuote}, "a", types.RoleUser, true},
		{"own account", marketdata.Event{Type: marketdata.EventAccount, Account: "a"}, "a", types.RoleUser, true},
		{"other account", marketdata.Event{Type: marketdata.EventAccount, Account: "b"}, "a", types.RoleUser, false},
		{"other request", marketdata.Event{Type: marketdata.EventRequest, Account: "b"}, "a", types.RoleUser, false},
		{"admin sees requests", marketdata.Event{Type: marketdata.EventRequest, Account: "b"}, "a", types.RoleAdmin, true},
		{"admin skips other accounts", marketdata.Event{Type: marketdata.EventAccount, Account: "b"}, "a", types.RoleAdmin, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, visible(tc.evt, tc.account, tc.role))
		})
	}
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }
	require.True(t, rl.allow("10.0.0.1"))
	rl.now = func() time.Time { return now.Add(time.Hour) }
	assert.Equal(t, 1, rl.Prune())
	assert.Equal(t, 0, rl.Prune())
}

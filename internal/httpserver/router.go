package httpserver

import (
	"net/http"

	"zentum/internal/accounts"
	"zentum/internal/auth"
	"zentum/internal/funding"
	"zentum/internal/health"
	"zentum/internal/marketdata"
	"zentum/internal/orders"
	"zentum/internal/sessions"
	"zentum/internal/types"
	"zentum/internal/volatility"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterDeps struct {
	AuthHandler     *auth.Handler
	AccountsHandler *accounts.Handler
	OrderHandler    *orders.Handler
	FundingHandler  *funding.Handler
	MarketHandler   *marketdata.Handler
	SessionsHandler *sessions.Handler
	HealthHandler   *health.Handler
	Volatility      *volatility.Handler
	Tokens          TokenParser
	WSHandler       http.Handler
	RateLimiter     *RateLimiter
	Origin          string
	Logger          *zap.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog(log.Named("http")))
	r.Use(CORS(d.Origin))
	r.Use(SecurityHeaders)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", d.HealthHandler.Ready)
		r.Get("/live", d.HealthHandler.Live)
		r.Get("/ready", d.HealthHandler.Ready)
		r.Get("/full", d.HealthHandler.Full)
		r.Get("/metrics", d.HealthHandler.Metrics)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/ws", d.WSHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			if d.RateLimiter != nil {
				r.Use(d.RateLimiter.Middleware)
			}
			r.Post("/auth/register", d.AuthHandler.Register)
			r.Post("/auth/login", d.AuthHandler.Login)

			r.Get("/quotes", d.MarketHandler.List)
			r.Get("/quotes/{symbol}", func(w http.ResponseWriter, r *http.Request) {
				d.MarketHandler.Get(w, r, chi.URLParam(r, "symbol"))
			})
			r.Get("/market/status", d.SessionsHandler.Status)

			r.Group(func(r chi.Router) {
				r.Use(WithAuth(d.Tokens))

				r.Get("/account", withAccount(d.AccountsHandler.Get))
				r.Get("/account/history", withAccount(d.AccountsHandler.History))
				r.Get("/account/metrics", withAccount(d.OrderHandler.Metrics))

				r.Post("/forex/positions", withAccount(d.OrderHandler.OpenPosition))
				r.Post("/forex/positions/close", withAccount(d.OrderHandler.CloseMany))
				r.Delete("/forex/positions/{id}", withAccount(func(w http.ResponseWriter, r *http.Request, accountID string) {
					d.OrderHandler.ClosePosition(w, r, accountID, chi.URLParam(r, "id"))
				}))

				r.Post("/crypto/holdings", withAccount(d.OrderHandler.BuyHolding))
				r.Delete("/crypto/holdings/{id}", withAccount(func(w http.ResponseWriter, r *http.Request, accountID string) {
					d.OrderHandler.SellHolding(w, r, accountID, chi.URLParam(r, "id"))
				}))

				r.Post("/funding/deposits", withAccount(d.FundingHandler.SubmitDeposit))
				r.Post("/funding/withdrawals", withAccount(d.FundingHandler.SubmitWithdrawal))
				r.Get("/funding/requests", withAccount(d.FundingHandler.ListMine))

				r.Route("/admin", func(r chi.Router) {
					r.Use(RequireRole(types.RoleAdmin))
					r.Get("/accounts", withAccount(d.AccountsHandler.List))
					r.Post("/accounts/{id}/balances", withAccount(func(w http.ResponseWriter, r *http.Request, adminID string) {
						d.AccountsHandler.SetBalances(w, r, adminID, chi.URLParam(r, "id"))
					}))
					r.Get("/volatility", d.Volatility.GetSettings)
					r.Post("/volatility", d.Volatility.SetActive)
					r.Get("/requests", d.FundingHandler.List)
					r.Post("/requests/{id}/approve", withAccount(func(w http.ResponseWriter, r *http.Request, adminID string) {
						d.FundingHandler.Approve(w, r, adminID, chi.URLParam(r, "id"))
					}))
					r.Post("/requests/{id}/reject", withAccount(func(w http.ResponseWriter, r *http.Request, adminID string) {
						d.FundingHandler.Reject(w, r, adminID, chi.URLParam(r, "id"))
					}))
				})
			})
		})
	})
	return r
}

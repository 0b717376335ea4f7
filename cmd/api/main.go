package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zentum/internal/accounts"
	"zentum/internal/auth"
	"zentum/internal/config"
	"zentum/internal/db"
	"zentum/internal/events"
	"zentum/internal/funding"
	"zentum/internal/health"
	"zentum/internal/httpserver"
	"zentum/internal/ledger"
	"zentum/internal/marketdata"
	"zentum/internal/orders"
	"zentum/internal/sessions"
	"zentum/internal/storage"
	"zentum/internal/volatility"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// store is everything the services need from the durable layer.
type store interface {
	ledger.Store
	funding.Store
	auth.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func openStore(ctx context.Context, cfg config.Config) (store, *pgxpool.Pool, error) {
	if cfg.StoreDriver != "postgres" {
		return storage.NewMemory(), nil, nil
	}
	pool, err := db.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return storage.NewPostgres(pool), pool, nil
}

func loadCatalog(cfg config.Config) (*marketdata.Catalog, error) {
	if cfg.InstrumentsFile == "" {
		return marketdata.DefaultCatalog(), nil
	}
	return marketdata.LoadCatalog(cfg.InstrumentsFile)
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	startedAt := time.Now()

	st, pool, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return fmt.Errorf("instruments: %w", err)
	}
	calendar, err := sessions.NewCalendar(cfg.ForexOpen, cfg.ForexClose, cfg.ForexHolidays)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	policy, err := funding.ParseWithdrawalPolicy(cfg.WithdrawalPolicy)
	if err != nil {
		return err
	}

	bus := marketdata.NewBus(256)
	feed := marketdata.NewFeed(bus, cfg.QuoteStaleAfter, logger)
	syncer := ledger.NewSynchronizer(st, ledger.Options{
		CommitTimeout:      cfg.CommitTimeout,
		MaxConflictRetries: cfg.MaxConflictRetries,
		Logger:             logger,
	})

	var publisher *events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), 1024, logger)
	}

	orderSvc := orders.NewService(syncer, feed, catalog, calendar, cfg.Leverage, logger)
	fundingSvc := funding.NewService(st, syncer, policy, logger)
	authSvc := auth.NewService(st, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL, logger)
	accountSvc := accounts.NewService(syncer, logger)

	if err := authSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPasswordHash); err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	var sink eventSink
	if publisher != nil {
		sink = publisher
	}
	wireEvents(bus, syncer, fundingSvc, sink)

	var sim *marketdata.SimSource
	var volTarget volatility.Target
	if cfg.QuoteSource == "sim" {
		sim = marketdata.NewSimSource(catalog, cfg.SimSeed, 0)
		volTarget = sim
	}
	volStore := volatility.NewStore(volTarget)

	limiter := httpserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	ws := httpserver.NewWSHandler(bus, authSvc, feed, orderSvc, cfg.WebSocketOrigin, logger)
	gauges := health.Gauges{
		Quotes:      func() int { return len(feed.Snapshot()) },
		CachedAccts: syncer.Cache().Len,
		WSClients:   ws.Clients,
		BusDropped:  bus.Dropped,
	}
	if publisher != nil {
		gauges.EventsDropped = publisher.Dropped
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:     auth.NewHandler(authSvc),
		AccountsHandler: accounts.NewHandler(accountSvc),
		OrderHandler:    orders.NewHandler(orderSvc),
		FundingHandler:  funding.NewHandler(fundingSvc),
		MarketHandler:   marketdata.NewHandler(feed, catalog),
		SessionsHandler: sessions.NewHandler(calendar),
		HealthHandler:   health.NewHandler(pool, cfg.StoreDriver, startedAt, cfg.HTTPAddr, cfg.InternalToken, gauges),
		Volatility:      volatility.NewHandler(volStore),
		Tokens:          authSvc,
		WSHandler:       ws,
		RateLimiter:     limiter,
		Origin:          cfg.WebSocketOrigin,
		Logger:          logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if sim != nil {
		g.Go(func() error { return feed.Run(gctx, sim, cfg.SimInterval) })
	} else {
		fx := marketdata.NewFXSource(cfg.FXEndpoint, nil, catalog)
		crypto := marketdata.NewCryptoSource(cfg.CryptoEndpoint, nil, catalog)
		g.Go(func() error { return feed.Run(gctx, fx, cfg.FXInterval) })
		g.Go(func() error { return feed.Run(gctx, crypto, cfg.CryptoInterval) })
	}
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}
	g.Go(func() error {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := limiter.Prune(); n > 0 {
					logger.Debug("rate limiter pruned", zap.Int("visitors", n))
				}
			}
		}
	})
	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreDriver),
			zap.String("quotes", cfg.QuoteSource),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

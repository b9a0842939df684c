package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/bytefinance/backend/docs"
	"github.com/bytefinance/backend/internal/config"
	"github.com/bytefinance/backend/internal/database"
	"github.com/bytefinance/backend/internal/handlers"
	mW "github.com/bytefinance/backend/internal/middleware"
	"github.com/bytefinance/backend/internal/services"
	"github.com/bytefinance/backend/internal/store"
)

// @title Byte Finance Ledger API
// @version 1.0
// @description Wallet, savings, stock trading and loan application API with exactly-once ledger commands
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

type stores struct {
	accounts store.AccountStore
	ledger   store.LedgerLog
	loans    store.LoanStore
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Initialize config
	if err := config.Init(viper.GetViper(), ".env"); err != nil {
		log.WithError(err).Info("config file not found, using environment and defaults")
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	configureLogger(log, cfg.Log)

	// Initialize Swagger docs
	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	ctx := context.Background()

	st := stores{
		accounts: store.NewMemoryAccountStore(),
		ledger:   store.NewMemoryLedger(),
		loans:    store.NewMemoryLoanStore(),
	}
	if cfg.Ledger.StoreBackend == "postgres" {
		db, err := database.InitDB(ctx, log)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize database")
		}
		defer db.Close()
		st = stores{
			accounts: store.NewPostgresAccountStore(db),
			ledger:   store.NewPostgresLedger(db),
			loans:    store.NewPostgresLoanStore(db),
		}
	} else {
		log.Warn("using in-memory stores, balances will not survive a restart")
	}

	redisClient := database.InitRedis(ctx, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerOpts := []services.LedgerOption{
		services.WithDefaultCurrency(cfg.Ledger.DefaultCurrency),
		services.WithLockTTL(cfg.Ledger.SellLockTTL),
	}
	var holdingsCache services.HoldingsCache
	if redisClient != nil {
		holdingsCache = services.NewRedisHoldingsCache(redisClient, cfg.Ledger.HoldingsCacheTTL)
		ledgerOpts = append(ledgerOpts,
			services.WithLocker(services.NewRedisLocker(redisClient)),
			services.WithHoldingsCache(holdingsCache),
		)
	}

	ledgerService := services.NewLedgerService(st.accounts, st.ledger, log, ledgerOpts...)
	queryService := services.NewQueryService(st.accounts, st.ledger, holdingsCache, log)
	transferService := services.NewTransferService(st.accounts, ledgerService, log)
	loanService := services.NewLoanService(st.loans, log)

	recovery := services.NewRecoveryService(st.ledger, ledgerService, cfg.Ledger.PendingTimeout, log)
	sweeper, err := recovery.Start(cfg.Ledger.SweepSchedule)
	if err != nil {
		log.WithError(err).Fatal("failed to schedule pending entry sweep")
	}

	api := &handlers.API{
		Ledger: handlers.NewLedgerHandler(ledgerService, queryService, transferService, log),
		Loans:  handlers.NewLoanHandler(loanService, cfg.Ledger.DefaultCurrency, log),
	}
	if redisClient != nil {
		paymentRequests := services.NewPaymentRequestService(redisClient, transferService, cfg.Ledger.PaymentRequestTTL, log)
		api.Payments = handlers.NewPaymentRequestHandler(paymentRequests, log)
	} else {
		log.Warn("payment requests disabled, redis unavailable")
	}

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(mW.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "store": cfg.Ledger.StoreBackend, "redis": "up"}
		if redisClient == nil {
			status["redis"] = "disabled"
		} else if err := redisClient.Ping(r.Context()).Err(); err != nil {
			status["redis"] = "down"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", api.Mount)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.WithField("port", cfg.Server.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	<-sweeper.Stop().Done()

	log.Info("server stopped")
}

func configureLogger(log *logrus.Logger, cfg config.LogConfig) {
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

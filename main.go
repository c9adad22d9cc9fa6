package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eduplatform-api/config"
	"eduplatform-api/database"
	adminapi "eduplatform-api/internal/api/admin"
	aiapi "eduplatform-api/internal/api/ai"
	"eduplatform-api/internal/api/billing"
	stripewebhooks "eduplatform-api/internal/api/stripewebhook"
	usersapi "eduplatform-api/internal/api/users"
	routes "eduplatform-api/internal/app/http"
	"eduplatform-api/internal/app/http/middleware"
	"eduplatform-api/internal/infra/storage"
	"eduplatform-api/internal/infra/tokens"
	"eduplatform-api/internal/logging"
	"eduplatform-api/internal/metrics"
	"eduplatform-api/internal/service/admission"
	"eduplatform-api/internal/service/ledger"
	"eduplatform-api/internal/service/quota"
	"eduplatform-api/internal/service/subscription"
	"eduplatform-api/internal/workers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, envFile, cfgErr := config.LoadEnv()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)
	defer logger.Sync()

	if !envFile {
		logger.Info("no .env file found, using system environment variables")
	}
	if cfgErr != nil {
		logger.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBDriver, cfg.DBURL, logger)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}
	if err := database.SeedSubscriptionTypes(db, logger); err != nil {
		logger.Fatal("seeding subscription types failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	reader, err := buildReader(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("token reader setup failed", zap.Error(err))
	}

	tx := storage.NewTransactor(db, logger)
	ledgerSvc := ledger.New(db, tx, ledger.Config{
		OperatorSecret:      cfg.DepositSecret,
		AllowSignedDeposits: cfg.AllowSignedDeposits,
	}, logger)
	subs := subscription.New(db, tx, ledgerSvc, subscription.Config{FreeTierID: cfg.FreeSubscriptionTypeID}, logger, m)
	accounting := quota.New(db, subs, quota.Config{FreeTierID: cfg.FreeSubscriptionTypeID}, logger)

	recorder := workers.NewUsageRecorder(accounting, cfg.UsageQueueSize, logger, m)
	recorder.Start()
	sweeperDone := workers.StartExpirySweeper(ctx, subs, cfg.SweepInterval, logger)

	gate := admission.New(admission.Config{
		MeteredPrefixes: cfg.MeteredPrefixes,
		FailOpen:        cfg.GateFailOpen,
	}, reader, accounting, recorder, logger, m)

	aiHandler, err := aiapi.NewHandler(cfg.AIUpstreamURL, logger)
	if err != nil {
		logger.Fatal("invalid AI_UPSTREAM_URL", zap.Error(err))
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), middleware.Recovery(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		Reader:   reader,
		Gate:     gate,
		Operator: ledgerSvc,
		Billing: billing.NewHandler(subs, ledgerSvc, accounting,
			billing.NewCheckout(cfg.StripeSecretKey, cfg.AppURL, cfg.StripeCurrency), logger),
		Users:   usersapi.NewHandler(ledgerSvc, subs),
		Admin:   adminapi.NewHandler(ledgerSvc, subs, logger),
		Webhook: stripewebhooks.NewHandler(cfg.StripeWebhookSecret, ledgerSvc, logger),
		AI:      aiHandler,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := recorder.Stop(shutdownCtx); err != nil {
		logger.Warn("usage recorder did not drain", zap.Error(err))
	}
	<-sweeperDone
}

// buildReader accepts HMAC tokens, OIDC ID tokens, or both.
func buildReader(ctx context.Context, cfg config.Config, logger *zap.Logger) (tokens.Reader, error) {
	var chain tokens.Chain
	if cfg.JWTSecret != "" {
		r, err := tokens.NewHMACReader(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, logger)
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
	}
	if cfg.OIDCIssuerURL != "" {
		r, err := tokens.NewOIDCReader(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID, logger)
		if err != nil {
			return nil, err
		}
		chain = append(chain, r)
	}
	if len(chain) == 1 {
		return chain[0], nil
	}
	return chain, nil
}

package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dangkhoa18052004/spa-portal/internal/api/router"
	"github.com/dangkhoa18052004/spa-portal/internal/audit"
	"github.com/dangkhoa18052004/spa-portal/internal/billing"
	"github.com/dangkhoa18052004/spa-portal/internal/booking"
	"github.com/dangkhoa18052004/spa-portal/internal/catalog"
	appconfig "github.com/dangkhoa18052004/spa-portal/internal/config"
	"github.com/dangkhoa18052004/spa-portal/internal/notify"
	"github.com/dangkhoa18052004/spa-portal/internal/observability/metrics"
	"github.com/dangkhoa18052004/spa-portal/internal/portal"
	"github.com/dangkhoa18052004/spa-portal/internal/spaapi"
	"github.com/dangkhoa18052004/spa-portal/pkg/logging"
)

func main() {
	// Local development reads .env; deployments set real env vars.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting spa-portal API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.AuthJWTSecret == "" {
		logger.Error("AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	// Upstream spa backend client
	api := spaapi.New(cfg.SpaAPIBaseURL, cfg.SpaAPITimeout, logger)

	// Catalog cache
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	cat := catalog.New(api, rdb, cfg.CatalogCacheTTL, logger)

	// Audit trail (optional; the workflow runs without it)
	var trail *audit.Trail
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open audit database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		trail = audit.NewTrail(db)
	} else {
		logger.Warn("DATABASE_URL not set, audit trail disabled")
	}

	// Workflow metrics on the default registry
	workflowMetrics := metrics.NewWorkflowMetrics(nil)

	// Confirmation emails
	var sender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		sender = sg
	} else {
		logger.Warn("SENDGRID_API_KEY not set, confirmation emails disabled")
	}
	mailer := notify.NewBookingMailer(sender, logger)

	// Booking and billing services
	checker := booking.NewChecker(api, logger, workflowMetrics)
	submitter := booking.NewSubmitter(api, mailer, logger, workflowMetrics)
	pollers := billing.NewPollerManager(api, cfg.PaymentPollInterval, cfg.PaymentPollMaxAttempts, logger, workflowMetrics)
	flow := billing.NewFlow(api, pollers, logger, workflowMetrics)

	// Per-operator selection sessions
	sessions := portal.NewSessionStore(0, logger)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sessions.Sweep(sweepCtx)

	hub := portal.NewEventHub()
	portalHandler := portal.NewHandler(sessions, cat, api, checker, submitter, flow, trail, hub, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		PortalHandler:      portalHandler,
		AuthSecret:         []byte(cfg.AuthJWTSecret),
		LoginURL:           cfg.LoginURL,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ReadyCheck: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Let in-flight payment pollers wind down before exiting.
	pollers.StopAll()

	logger.Info("server stopped")
}

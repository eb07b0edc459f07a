package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/licensor-backend/api/middleware"
	"github.com/angelmondragon/licensor-backend/api/routes"
	"github.com/angelmondragon/licensor-backend/internal/auth"
	"github.com/angelmondragon/licensor-backend/internal/licenses"
	"github.com/angelmondragon/licensor-backend/internal/loginlimit"
	"github.com/angelmondragon/licensor-backend/internal/users"
	"github.com/angelmondragon/licensor-backend/pkg/auth/session"
	"github.com/angelmondragon/licensor-backend/pkg/config"
	"github.com/angelmondragon/licensor-backend/pkg/db"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
	"github.com/angelmondragon/licensor-backend/pkg/metrics"
	"github.com/angelmondragon/licensor-backend/pkg/migrate"
	"github.com/angelmondragon/licensor-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	licenseMetrics := metrics.NewLicenseMetrics(registry)

	userRepo := users.NewRepository(dbClient.DB())
	if _, err := users.EnsureBootstrapAdmin(ctx, userRepo, cfg.Bootstrap, cfg.Password, logg); err != nil {
		logg.Error(ctx, "failed to bootstrap admin account", err)
		os.Exit(1)
	}

	limiter := loginlimit.NewLimiter(loginlimit.Params{
		MaxAttempts: cfg.LoginLimiter.MaxAttempts,
		Lockout:     cfg.LoginLimiter.Lockout(),
		IdleTTL:     cfg.LoginLimiter.IdleTTL,
	})
	go limiter.Run(ctx, cfg.LoginLimiter.SweepInterval)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		Limiter:        limiter,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Metrics:        licenseMetrics,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	transactor, err := licenses.NewGormTransactor(dbClient)
	if err != nil {
		logg.Error(ctx, "failed to create license transactor", err)
		os.Exit(1)
	}
	licenseService, err := licenses.NewService(licenses.ServiceParams{
		Transactor: transactor,
		Reader:     licenses.NewRepository(dbClient.DB()),
		Owners:     userRepo,
		Config:     cfg.License,
		Metrics:    licenseMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create license service", err)
		os.Exit(1)
	}

	publicLimiter := middleware.NewPublicRateLimiter(
		cfg.PublicRateLimit.RequestsPerSecond,
		cfg.PublicRateLimit.Burst,
		cfg.PublicRateLimit.IdleTTL,
		logg,
	)
	go publicLimiter.Run(ctx, time.Minute)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Cache:          redisClient,
			Sessions:       sessionManager,
			Auth:           authService,
			Licenses:       licenseService,
			PublicLimiter:  publicLimiter,
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

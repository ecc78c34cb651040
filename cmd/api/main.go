package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rangeos/engine/internal/api"
	"github.com/rangeos/engine/internal/api/handlers"
	mw "github.com/rangeos/engine/internal/api/middleware"
	"github.com/rangeos/engine/internal/metrics"
	"github.com/rangeos/engine/internal/mockapi"
	"github.com/rangeos/engine/internal/repository"
	"github.com/rangeos/engine/internal/services"
	"github.com/rangeos/engine/pkg/config"
	"github.com/rangeos/engine/pkg/database"
	"github.com/rangeos/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat, zap.String("component", "api"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting RangeOS fixture API",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("version", cfg.DevopsAPIVersion),
		zap.Bool("auth", cfg.AuthEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		uiRepo repository.UIStateRepository
		checks []handlers.Check
	)
	if cfg.DatabaseURL != "" {
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, database.Options{AppEnv: cfg.AppEnv, Logger: log})
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		log.Info("database connected")
		uiRepo = repository.NewUIStateRepository(db)
		checks = append(checks, handlers.Check{Name: "database", Fn: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	} else {
		log.Warn("DATABASE_URL not set, UI state is kept in memory")
		uiRepo = repository.NewMemoryUIStateRepository()
	}

	fixtures, err := mockapi.NewServer(mockapi.Options{Version: cfg.DevopsAPIVersion, Logger: log})
	if err != nil {
		log.Fatal("failed to load fixtures", zap.Error(err))
	}
	for _, e := range fixtures.Catalog() {
		log.Debug("fixture mounted", zap.String("path", e.Path), zap.Int("count", e.Count), zap.Bool("paged", e.Paging.Paged))
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	uiSvc := services.NewUIStateService(uiRepo, services.NewResetBus())

	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunGC(ctx, time.Minute)

	router := api.NewRouter(api.Dependencies{
		Version:     cfg.DevopsAPIVersion,
		AuthSecret:  []byte(cfg.AuthSecret),
		AuthIssuer:  cfg.KeycloakIssuer(),
		TrustProxy:  cfg.TrustProxy,
		RateLimiter: limiter,
		Metrics:     metrics.New(true),
		Health:      handlers.NewHealthHandler(checks...),
		Fixtures:    fixtures,
		UIState:     handlers.NewUIStateHandler(uiSvc, v),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server exited gracefully")
}

package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/rangeos/engine/pkg/config"
	"github.com/rangeos/engine/pkg/database"
	"github.com/rangeos/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat, zap.String("component", "migrate"))
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := database.OpenPostgres(context.Background(), cfg.DatabaseURL, database.Options{AppEnv: cfg.AppEnv, Logger: log})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := runMigrations(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stdout, "migrations completed")
}

//cmd/seeder/main.go
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/config"
	"github.com/unclebandit/wacrm-backend/internal/db"
	"github.com/unclebandit/wacrm-backend/internal/logger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.App.Name+"-seeder")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.PG, log)
	if err != nil {
		log.Fatal("failed to connect", zap.Error(err))
	}
	defer conn.Close()

	files := []string{
		"migrations/001_init.sql",
		"seed/leads.sql",
		"seed/automation_rules.sql",
		"seed/webhook_subscriptions.sql",
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal("failed to read file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal("failed to execute file", zap.String("file", file), zap.Error(err))
		}
		log.Info("applied", zap.String("file", file))
	}

	log.Info("database seeding completed")
}

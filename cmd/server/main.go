// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/app"
	"github.com/unclebandit/wacrm-backend/internal/config"
	"github.com/unclebandit/wacrm-backend/internal/controller"
	"github.com/unclebandit/wacrm-backend/internal/handler"
	"github.com/unclebandit/wacrm-backend/internal/logger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.App.Name+"-server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	defer c.Close()

	inboundController := &controller.InboundController{
		Ingest: c.Ingest,
		Secret: cfg.Inbound.Secret,
		Log:    log.Named("inbound"),
	}
	automationController := &controller.AutomationController{
		Events:   c.EventService,
		Consumer: c.Consumer,
		Retries:  c.Retries,
	}
	deliveryHandler := &handler.DeliveryHandler{Webhooks: c.Webhooks, Deliveries: c.Deliveries}
	adminHandler := &handler.AdminHandler{Cache: c.Cache, Log: log.Named("admin")}
	runHandler := &handler.RunHandler{Runs: c.Runs, Queue: c.QueueRepo}
	healthHandler := &handler.HealthHandler{DB: c.DB}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Provider and domain intake
	r.Post("/webhooks/whatsapp", inboundController.ReceiveWhatsApp)
	r.Post("/events", automationController.PublishEvent)

	// Manual pipeline passes
	r.Post("/automation/run", automationController.RunPending)
	r.Post("/webhooks/retries/run", automationController.RunRetries)

	// Audit trail
	r.Get("/automation/runs", runHandler.ListRuns)
	r.Get("/automation/queue/{id}", runHandler.GetQueueItem)
	r.Get("/webhooks/{id}/deliveries", deliveryHandler.ListDeliveries)
	r.Post("/admin/cache/invalidate", adminHandler.InvalidateCache)
	r.Get("/healthz", healthHandler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	if err := app.Serve(ctx, srv, cfg.HTTP.ShutdownTimeout, log); err != nil {
		log.Error("http server stopped", zap.Error(err))
	}
}

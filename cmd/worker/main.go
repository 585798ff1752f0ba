package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/wacrm-backend/internal/app"
	"github.com/unclebandit/wacrm-backend/internal/config"
	"github.com/unclebandit/wacrm-backend/internal/logger"
	"github.com/unclebandit/wacrm-backend/internal/queue"
	"github.com/unclebandit/wacrm-backend/internal/service"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.App.Name+"-worker")
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

	wake := make(chan struct{}, 1)
	if err := queue.SubscribeWakeups(ctx, c.Queue, cfg.AMQP.Topic, wake); err != nil {
		log.Fatal("failed to subscribe to wake-ups", zap.Error(err))
	}

	worker := service.NewWorker(c.Consumer, cfg.Consumer.PollInterval, cfg.Consumer.PassTimeout, wake, log.Named("worker"))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: ":" + cfg.Consumer.MetricsPort, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		c.Retries.RetryLoop(gctx, cfg.Consumer.RetryInterval)
		return nil
	})
	g.Go(func() error {
		return app.Serve(gctx, metricsServer, cfg.HTTP.ShutdownTimeout, log)
	})

	log.Info("worker running",
		zap.Duration("poll_interval", cfg.Consumer.PollInterval),
		zap.Duration("retry_interval", cfg.Consumer.RetryInterval))
	if err := g.Wait(); err != nil {
		log.Error("worker stopped", zap.Error(err))
	}
}

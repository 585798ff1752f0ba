// Package app wires the pipeline components shared by the server and worker.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unclebandit/wacrm-backend/internal/automation"
	"github.com/unclebandit/wacrm-backend/internal/cache"
	"github.com/unclebandit/wacrm-backend/internal/config"
	"github.com/unclebandit/wacrm-backend/internal/db"
	"github.com/unclebandit/wacrm-backend/internal/metrics"
	"github.com/unclebandit/wacrm-backend/internal/queue"
	"github.com/unclebandit/wacrm-backend/internal/repository"
	"github.com/unclebandit/wacrm-backend/internal/service"
	"github.com/unclebandit/wacrm-backend/internal/whatsapp"
)

type Container struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Pipeline
	DB      *sql.DB
	Cache   cache.Cache
	Queue   queue.Queue
	Waker   *queue.Notifier

	QueueRepo    *repository.QueueRepository
	Webhooks     *repository.WebhookRepository
	Deliveries   *repository.DeliveryRepository
	Runs         *repository.AutomationRunRepository
	Consumer     *service.QueueConsumer
	Dispatcher   *service.WebhookDispatcher
	Retries      *service.RetryScheduler
	Ingest       *service.MessageIngestService
	EventService *service.EventService

	redis *redis.Client
}

// Build connects every backing service and assembles the pipeline.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Log: log, Metrics: metrics.Default()}

	conn, err := db.Open(ctx, cfg.PG, log)
	if err != nil {
		return nil, err
	}
	c.DB = conn

	if err := c.openCache(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.openQueue(); err != nil {
		c.Close()
		return nil, err
	}
	c.Waker = &queue.Notifier{Queue: c.Queue, Topic: cfg.AMQP.Topic, Log: log}

	c.QueueRepo = &repository.QueueRepository{DB: conn}
	c.Webhooks = &repository.WebhookRepository{DB: conn}
	c.Deliveries = &repository.DeliveryRepository{DB: conn}
	c.Runs = &repository.AutomationRunRepository{DB: conn}
	leads := &repository.LeadRepository{DB: conn}
	conversations := &repository.ConversationRepository{DB: conn}
	messages := &repository.MessageRepository{DB: conn}

	rules := &cache.CachedRuleSource{
		Next:    &repository.AutomationRuleRepository{DB: conn},
		Cache:   c.Cache,
		TTL:     cfg.Cache.RulesTTL,
		Metrics: c.Metrics,
		Log:     log,
	}
	subscriptions := &cache.CachedSubscriptionSource{
		Next:    c.Webhooks,
		Cache:   c.Cache,
		TTL:     cfg.Cache.SubscriptionsTTL,
		Metrics: c.Metrics,
		Log:     log,
	}

	c.Dispatcher = &service.WebhookDispatcher{
		Subscriptions: subscriptions,
		Current:       c.Webhooks,
		Deliveries:    c.Deliveries,
		HTTPClient:    &http.Client{},
		Timeout:       cfg.Webhook.Timeout,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
		ClaimLease:    cfg.Webhook.ClaimLease,
		UserAgent:     cfg.Webhook.UserAgent,
		Log:           log.Named("webhooks"),
		Metrics:       c.Metrics,
	}
	c.Retries = &service.RetryScheduler{
		Dispatcher:    c.Dispatcher,
		Subscriptions: c.Webhooks,
		BatchSize:     cfg.Webhook.BatchSize,
	}

	registry := automation.NewDefaultRegistry(automation.Deps{
		Leads:         leads,
		Tags:          &repository.TagRepository{DB: conn},
		Tasks:         &repository.TaskRepository{DB: conn},
		Notifications: &repository.NotificationRepository{DB: conn},
		Conversations: conversations,
		Messages:      messages,
		Sender:        whatsapp.NewClient(cfg.WhatsApp.BaseURL, cfg.WhatsApp.APIKey, cfg.WhatsApp.Session, cfg.WhatsApp.Timeout),
		Events:        c.QueueRepo,
		Log:           log.Named("actions"),
	})
	c.Consumer = &service.QueueConsumer{
		Queue:      c.QueueRepo,
		Rules:      rules,
		Runs:       c.Runs,
		Executor:   automation.NewExecutor(registry, log.Named("actions"), c.Metrics),
		Webhooks:   c.Dispatcher,
		BatchSize:  cfg.Consumer.BatchSize,
		ClaimLease: cfg.Consumer.ClaimLease,
		Log:        log.Named("consumer"),
		Metrics:    c.Metrics,
	}

	c.Ingest = &service.MessageIngestService{
		Messages:      messages,
		Conversations: conversations,
		Leads:         leads,
		Events:        c.QueueRepo,
		Waker:         c.Waker,
		Log:           log.Named("ingest"),
		Metrics:       c.Metrics,
	}
	c.EventService = &service.EventService{Queue: c.QueueRepo, Waker: c.Waker}
	return c, nil
}

func (c *Container) openCache(ctx context.Context) error {
	if c.Config.Redis.Addr == "" {
		c.Log.Info("using in-memory cache")
		c.Cache = cache.NewMemoryCache()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	c.redis = client
	c.Cache = cache.NewRedisCache(client)
	c.Log.Info("connected to redis", zap.String("addr", c.Config.Redis.Addr))
	return nil
}

func (c *Container) openQueue() error {
	if c.Config.AMQP.URL == "" {
		c.Log.Info("using in-process wake-up queue")
		c.Queue = queue.NewInMemoryQueue(c.Log.Named("queue"))
		return nil
	}
	q, err := queue.DialAMQP(c.Config.AMQP.URL, c.Log.Named("queue"))
	if err != nil {
		return err
	}
	c.Queue = q
	c.Log.Info("connected to rabbitmq", zap.String("topic", c.Config.AMQP.Topic))
	return nil
}

// Close releases connections in reverse order of opening.
func (c *Container) Close() {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			c.Log.Warn("queue close failed", zap.Error(err))
		}
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}

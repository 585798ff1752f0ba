// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		App      App
		HTTP     HTTP
		Log      Log
		PG       PG
		Redis    Redis
		AMQP     AMQP
		Consumer Consumer
		Webhook  Webhook
		WhatsApp WhatsApp
		Cache    Cache
		Inbound  Inbound
	}

	App struct {
		Name string `env:"APP_NAME" envDefault:"wacrm"`
	}

	HTTP struct {
		Port            string        `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}

	PG struct {
		URL             string        `env:"PG_URL,required,notEmpty"`
		MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" envDefault:"20"`
		MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" envDefault:"5"`
		ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" envDefault:"30m"`
	}

	Redis struct {
		// Addr empty means the in-memory cache is used.
		Addr     string `env:"REDIS_ADDR"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	AMQP struct {
		// URL empty means wake-ups stay in process.
		URL   string `env:"AMQP_URL"`
		Topic string `env:"AMQP_WAKEUP_TOPIC" envDefault:"automation.wakeup"`
	}

	Consumer struct {
		BatchSize     int           `env:"CONSUMER_BATCH_SIZE" envDefault:"100"`
		PollInterval  time.Duration `env:"CONSUMER_POLL_INTERVAL" envDefault:"5s"`
		ClaimLease    time.Duration `env:"CONSUMER_CLAIM_LEASE" envDefault:"2m"`
		PassTimeout   time.Duration `env:"CONSUMER_PASS_TIMEOUT" envDefault:"90s"`
		RetryInterval time.Duration `env:"WEBHOOK_RETRY_INTERVAL" envDefault:"15s"`
		MetricsPort   string        `env:"WORKER_METRICS_PORT" envDefault:"9090"`
	}

	Webhook struct {
		Timeout     time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"30s"`
		MaxAttempts int           `env:"WEBHOOK_MAX_ATTEMPTS" envDefault:"3"`
		ClaimLease  time.Duration `env:"WEBHOOK_CLAIM_LEASE" envDefault:"2m"`
		BatchSize   int           `env:"WEBHOOK_RETRY_BATCH_SIZE" envDefault:"50"`
		UserAgent   string        `env:"WEBHOOK_USER_AGENT" envDefault:"wacrm-webhooks/1.0"`
	}

	WhatsApp struct {
		BaseURL string        `env:"WHATSAPP_API_URL" envDefault:"http://localhost:3000"`
		APIKey  string        `env:"WHATSAPP_API_KEY"`
		Session string        `env:"WHATSAPP_SESSION" envDefault:"default"`
		Timeout time.Duration `env:"WHATSAPP_TIMEOUT" envDefault:"20s"`
	}

	Cache struct {
		RulesTTL         time.Duration `env:"CACHE_RULES_TTL" envDefault:"30s"`
		SubscriptionsTTL time.Duration `env:"CACHE_SUBSCRIPTIONS_TTL" envDefault:"30s"`
	}

	Inbound struct {
		// Secret empty disables signature checks on the provider webhook.
		Secret string `env:"WHATSAPP_WEBHOOK_SECRET"`
	}
)

// New loads .env (if any) and parses the environment.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}

package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		Env       string `env:"APP_ENV" env-default:"development"`
		Port      int    `env:"APP_PORT" env-default:"8080"`
		LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
		SentryUrl string `env:"SENTRY_URL"`
	}
	Postgres struct {
		Port    int    `env:"POSTGRES_PORT" env-default:"5432"`
		Host    string `env:"POSTGRES_HOST" env-default:"localhost"`
		User    string `env:"POSTGRES_USER"`
		Pass    string `env:"POSTGRES_PASS"`
		Name    string `env:"POSTGRES_NAME"`
		SslMode string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	}
	Telegram struct {
		APIEndpoint    string        `env:"TELEGRAM_API_ENDPOINT" env-default:"https://api.telegram.org/bot%s/%s"`
		RequestTimeout time.Duration `env:"TELEGRAM_REQUEST_TIMEOUT" env-default:"30s"`
		// Messages per minute allowed into a single chat or channel.
		ChannelRate  int    `env:"TELEGRAM_CHANNEL_RATE" env-default:"20"`
		ChannelBurst int    `env:"TELEGRAM_CHANNEL_BURST" env-default:"5"`
		AlertToken   string `env:"TELEGRAM_ALERT_TOKEN"`
		AlertChat    int64  `env:"TELEGRAM_ALERT_CHAT"`
	}
	Publisher struct {
		Interval        time.Duration `env:"PUBLISHER_INTERVAL" env-default:"5m"`
		RunTimeout      time.Duration `env:"PUBLISHER_RUN_TIMEOUT" env-default:"10m"`
		PlatformTimeout time.Duration `env:"PUBLISHER_PLATFORM_TIMEOUT" env-default:"60s"`
		ClaimLease      time.Duration `env:"PUBLISHER_CLAIM_LEASE" env-default:"30m"`
		Timezone        string        `env:"PUBLISHER_TIMEZONE" env-default:"UTC"`
	}
	Cron struct {
		Secret string `env:"CRON_SECRET"`
	}
}

// GetDSN returns the postgres connection string used by pgx and database/sql.
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Pass,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Name,
		c.Postgres.SslMode,
	)
}

var (
	once sync.Once
	cfg  *Config
)

func New() (*Config, error) {
	once.Do(func() {
		// .env is optional, real environment variables win.
		_ = godotenv.Load()

		cfg = &Config{}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			log.Fatalf("Failed to read configuration: %v\n%v", err, help)
		}
	})
	return cfg, nil
}

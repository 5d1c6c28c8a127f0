package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	EnvLocal  = "local"
	EnvDocker = "docker"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AppEnv        string `env:"APP_ENV" envDefault:"local"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`

	DatabaseURL     string `env:"DATABASE_URL"`
	DatabaseMigrate bool   `env:"DATABASE_MIGRATE" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	NotificationTopic string   `env:"NOTIFICATION_TOPIC" envDefault:"backoffice.notifications"`

	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`
	AdminUsername         string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword         string `env:"ADMIN_PASSWORD"`
	CashierUsername       string `env:"CASHIER_USERNAME" envDefault:"cashier"`
	CashierPassword       string `env:"CASHIER_PASSWORD"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads the environment. Secrets get no defaults; main refuses to
// start without them.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	brokers := cfg.KafkaBrokers[:0]
	for _, broker := range cfg.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	cfg.KafkaBrokers = brokers
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AppEnv != EnvLocal && c.AppEnv != EnvDocker {
		return fmt.Errorf("invalid APP_ENV: %s (must be 'local' or 'docker')", c.AppEnv)
	}
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

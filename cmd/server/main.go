package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"kasirinaja/backoffice/internal/cache"
	"kasirinaja/backoffice/internal/config"
	"kasirinaja/backoffice/internal/domain"
	kafkanotifier "kasirinaja/backoffice/internal/event/kafka"
	"kasirinaja/backoffice/internal/httpapi"
	"kasirinaja/backoffice/internal/logging"
	"kasirinaja/backoffice/internal/observer"
	"kasirinaja/backoffice/internal/service"
	"kasirinaja/backoffice/internal/shutdown"
	"kasirinaja/backoffice/internal/store"
	"kasirinaja/backoffice/internal/store/memory"
	pgstore "kasirinaja/backoffice/internal/store/postgres"
)

func main() {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{
		ServiceName: "backoffice",
		Env:         cfg.AppEnv,
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		AddCaller:   true,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logging.Sync(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdowner := shutdown.New(cfg.ShutdownTimeout, logger)

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if cfg.DatabaseMigrate {
			if err := pg.Migrate(startCtx); err != nil {
				_ = pg.Close()
				return fmt.Errorf("migrate postgres: %w", err)
			}
		}
		repo = pg
		shutdowner.Add("postgres", shutdown.Closer(pg))
		logger.Info("repository ready", zap.String("driver", "postgres"))
	} else {
		seeded, err := memory.NewSeeded(logger)
		if err != nil {
			return fmt.Errorf("seed memory store: %w", err)
		}
		repo = seeded
		logger.Info("repository ready", zap.String("driver", "memory"))
	}

	var sink observer.AnalyticsSink = cache.NoopAnalyticsSink{}
	var daily service.DailyTotals
	if cfg.RedisAddr != "" {
		redisSink := cache.NewRedisAnalyticsSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisSink.Ping(startCtx); err != nil {
			logger.Warn("redis unavailable, daily analytics disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = redisSink.Close()
		} else {
			sink = redisSink
			daily = redisSink
			shutdowner.Add("redis", shutdown.Closer(redisSink))
			logger.Info("analytics sink ready", zap.String("addr", cfg.RedisAddr))
		}
	}

	var notifier observer.Notifier = observer.NewLogNotifier(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := kafkanotifier.NewNotifier(logger, cfg.KafkaBrokers, cfg.NotificationTopic)
		notifier = kafkaNotifier
		shutdowner.Add("kafka", shutdown.Closer(kafkaNotifier))
		logger.Info("notifications go to kafka",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.NotificationTopic),
		)
	}

	dispatcher := observer.NewDispatcher(logger)
	analytics, err := observer.RegisterBuiltins(dispatcher, observer.Builtins{
		Inventory: repo,
		Audit:     repo,
		Notifier:  notifier,
		Sink:      sink,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("register observers: %w", err)
	}

	svc := service.New(repo, dispatcher, analytics, logger)
	if daily != nil {
		svc = svc.WithDailyTotals(daily)
	}

	auth := httpapi.NewAuthManager(startCtx, cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	for _, account := range []struct {
		username string
		password string
		role     string
	}{
		{cfg.AdminUsername, cfg.AdminPassword, domain.RoleAdmin},
		{cfg.CashierUsername, cfg.CashierPassword, domain.RoleCashier},
	} {
		if account.password == "" {
			continue
		}
		created, err := auth.ProvisionUser(startCtx, account.username, account.password, account.role)
		if err != nil {
			return fmt.Errorf("provision %s account: %w", account.role, err)
		}
		if created {
			logger.Info("operator account provisioned", zap.String("username", account.username), zap.String("role", account.role))
		}
	}

	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Registered last so it stops first and no request sees a closed store.
	shutdowner.Add("http", server.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("backoffice listening", zap.String("addr", cfg.Address()), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() {
		if err, ok := <-serveErr; ok {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	shutdowner.Wait(ctx)
	logger.Info("server stopped")
	return nil
}

// validateSecurityConfig refuses to start with a guessable signing secret.
// Docker deployments must also not run on the seeded demo passwords.
func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if strings.Trim(cfg.AuthSecret, cfg.AuthSecret[:1]) == "" {
		return fmt.Errorf("AUTH_SECRET must not repeat a single character")
	}
	for _, account := range []struct {
		env      string
		password string
	}{
		{"ADMIN_PASSWORD", cfg.AdminPassword},
		{"CASHIER_PASSWORD", cfg.CashierPassword},
	} {
		if account.password != "" && len(account.password) < 8 {
			return fmt.Errorf("%s must be at least 8 characters", account.env)
		}
	}
	if cfg.AppEnv == config.EnvDocker && cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when APP_ENV=docker")
	}
	return nil
}

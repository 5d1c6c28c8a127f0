package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("CASHIER_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Empty(t, cfg.AuthSecret)
	require.Empty(t, cfg.AdminPassword)
	require.Empty(t, cfg.CashierPassword)
}

func TestLoadParsesEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "docker")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("DATABASE_MIGRATE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Address())
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	require.False(t, cfg.DatabaseMigrate)
	require.Equal(t, "backoffice.notifications", cfg.NotificationTopic)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	_, err := Load()
	require.ErrorContains(t, err, "invalid APP_ENV")

	t.Setenv("APP_ENV", "local")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	_, err = Load()
	require.Error(t, err)
}

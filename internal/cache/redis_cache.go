package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/observer"
)

const (
	analyticsKeyPrefix = "backoffice:analytics:"
	analyticsRetention = 90 * 24 * time.Hour
)

// RedisAnalyticsSink folds analytics deltas into one hash per UTC day so
// reports survive restarts and are shared between replicas.
type RedisAnalyticsSink struct {
	client *redis.Client
}

var _ observer.AnalyticsSink = (*RedisAnalyticsSink)(nil)

func NewRedisAnalyticsSink(addr string, password string, db int) *RedisAnalyticsSink {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAnalyticsSink{client: client}
}

func (c *RedisAnalyticsSink) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAnalyticsSink) Close() error {
	return c.client.Close()
}

func (c *RedisAnalyticsSink) Record(ctx context.Context, delta domain.AnalyticsDelta) error {
	if delta.IsZero() {
		return nil
	}
	key := DayKey(delta.At)

	pipe := c.client.TxPipeline()
	for field, value := range deltaFields(delta) {
		if value != 0 {
			pipe.HIncrBy(ctx, key, field, value)
		}
	}
	pipe.Expire(ctx, key, analyticsRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record analytics delta: %w", err)
	}
	return nil
}

// Day reads the totals recorded for the UTC day containing at.
func (c *RedisAnalyticsSink) Day(ctx context.Context, at time.Time) (domain.AnalyticsDelta, error) {
	values, err := c.client.HGetAll(ctx, DayKey(at)).Result()
	if err != nil {
		return domain.AnalyticsDelta{}, fmt.Errorf("read analytics day: %w", err)
	}

	totals := domain.AnalyticsDelta{At: at}
	targets := map[string]*int64{
		"revenue_cents":          &totals.RevenueCents,
		"loss_cents":             &totals.LossCents,
		"completed_transactions": &totals.CompletedTransactions,
		"cancelled_transactions": &totals.CancelledTransactions,
		"settled_payments":       &totals.SettledPayments,
		"collected_cents":        &totals.CollectedCents,
	}
	for field, raw := range values {
		target, ok := targets[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.AnalyticsDelta{}, fmt.Errorf("parse analytics field %s: %w", field, err)
		}
		*target = n
	}
	return totals, nil
}

func DayKey(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return analyticsKeyPrefix + at.UTC().Format("2006-01-02")
}

func deltaFields(delta domain.AnalyticsDelta) map[string]int64 {
	return map[string]int64{
		"revenue_cents":          delta.RevenueCents,
		"loss_cents":             delta.LossCents,
		"completed_transactions": delta.CompletedTransactions,
		"cancelled_transactions": delta.CancelledTransactions,
		"settled_payments":       delta.SettledPayments,
		"collected_cents":        delta.CollectedCents,
	}
}

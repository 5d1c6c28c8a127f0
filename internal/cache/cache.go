package cache

import (
	"context"

	"kasirinaja/backoffice/internal/domain"
	"kasirinaja/backoffice/internal/observer"
)

// NoopAnalyticsSink drops every delta. It is used when REDIS_ADDR is unset.
type NoopAnalyticsSink struct{}

var _ observer.AnalyticsSink = NoopAnalyticsSink{}

func (NoopAnalyticsSink) Record(_ context.Context, _ domain.AnalyticsDelta) error {
	return nil
}

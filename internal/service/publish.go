package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/sweet_shop/internal/events"
	"github.com/Skotchmaster/sweet_shop/internal/metrics"
	"github.com/Skotchmaster/sweet_shop/pkg/logging"
)

const sideEffectTimeout = 5 * time.Second

// publish runs after the database write has committed. Failures are logged
// and counted, never returned.
func publish(ctx context.Context, p events.Publisher, m *metrics.Metrics, topic, key string, event any) {
	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := p.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Warn("publish_event_failed", "topic", topic, "key", key, "error", err)
		m.ObserveEventFailure(topic)
	}
}

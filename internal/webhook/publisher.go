// README: Webhook egress; bus events are queued in Redis for out-of-process delivery.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"aegis/internal/events"
)

const queueKey = "aegis:webhook_events"

// Publisher enqueues events for the delivery worker.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// RedisPublisher implements Publisher on a Redis list.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}
	if err := p.redis.LPush(ctx, queueKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue webhook event: %w", err)
	}
	return nil
}

// Relay drains an event-bus subscription into the publisher. It is the
// egress side of the bus: a slow webhook endpoint never touches dispatch.
func Relay(ctx context.Context, sub *events.Subscription, pub Publisher, log *logrus.Logger) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C():
			if err := pub.Publish(ctx, ev); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"stream": ev.Stream,
					"seq":    ev.Seq,
				}).Error("enqueue event for webhook delivery")
			}
		}
	}
}

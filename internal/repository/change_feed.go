package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/westhall-edu/admissions-api/internal/models"
)

// ApplicationChangeFeed publishes and consumes stage-change events over a
// Redis pub/sub channel. Consumers treat every event as a cue to re-fetch;
// overlapping refreshes are idempotent, so no coalescing is applied here.
type ApplicationChangeFeed struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewApplicationChangeFeed constructs a change feed on the given channel.
func NewApplicationChangeFeed(client *redis.Client, channel string, logger *zap.Logger) *ApplicationChangeFeed {
	if channel == "" {
		channel = "admissions:applications:changes"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationChangeFeed{client: client, channel: channel, logger: logger}
}

// Publish emits a change event. Failures are returned but callers treat
// publication as best effort; the stage write has already been committed.
func (f *ApplicationChangeFeed) Publish(ctx context.Context, event models.ApplicationChangeEvent) error {
	if f.client == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe invokes the handler for every change event until the context is
// cancelled. The returned function unsubscribes and releases the connection.
func (f *ApplicationChangeFeed) Subscribe(ctx context.Context, handler func(models.ApplicationChangeEvent)) (func(), error) {
	if f.client == nil {
		return func() {}, nil
	}
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe change feed: %w", err)
	}
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event models.ApplicationChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.logger.Warn("malformed change event", zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()
	return func() { _ = sub.Close() }, nil
}

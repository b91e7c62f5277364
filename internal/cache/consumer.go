package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"platbook/internal/cache/models"
	dErrors "platbook/pkg/domain-errors"
)

// EventConsumer feeds invalidation events from the events topic into the
// manager. Collaborators that observe the world (deed monitors, county
// watchers, discrepancy detectors) publish there; the engine only reacts.
type EventConsumer struct {
	client  *kgo.Client
	manager *Manager
	logger  *slog.Logger
}

// NewEventConsumer wraps a client already configured with a consumer group
// on the invalidation events topic.
func NewEventConsumer(client *kgo.Client, manager *Manager, logger *slog.Logger) *EventConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventConsumer{client: client, manager: manager, logger: logger}
}

// Run polls until the context is cancelled or the client is closed.
func (c *EventConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "invalidation fetch failed",
				slog.String("topic", topic),
				slog.Int("partition", int(partition)),
				slog.Any("error", err))
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
		})
	}
}

// handle processes one record. Malformed or rejected events are logged and
// skipped so a poison record cannot wedge the partition.
func (c *EventConsumer) handle(ctx context.Context, record *kgo.Record) {
	var ev models.InvalidationEvent
	if err := json.Unmarshal(record.Value, &ev); err != nil {
		eventsMalformed.Inc()
		c.logger.WarnContext(ctx, "dropping malformed invalidation event",
			slog.Int64("offset", record.Offset),
			slog.Int("bytes", len(record.Value)),
			slog.Any("error", err))
		return
	}

	marked, err := c.manager.HandleEvent(ctx, ev)
	if err != nil {
		// Invalid events are producer defects: dropped and counted, never
		// escalated.
		if dErrors.Is(err, dErrors.CodeInvalidInput) {
			eventsMalformed.Inc()
			c.logger.WarnContext(ctx, "dropping invalid invalidation event",
				slog.String("event_id", ev.EventID.String()),
				slog.String("kind", string(ev.Kind)),
				slog.Int("bytes", len(record.Value)),
				slog.Any("error", err))
			return
		}
		c.logger.ErrorContext(ctx, "invalidation event failed",
			slog.String("event_id", ev.EventID.String()),
			slog.String("kind", string(ev.Kind)),
			slog.Any("error", err))
		return
	}
	c.logger.DebugContext(ctx, "invalidation event applied",
		slog.String("event_id", ev.EventID.String()),
		slog.String("property_id", ev.PropertyID.String()),
		slog.Int("fields_marked", len(marked)))
}

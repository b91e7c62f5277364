package verify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"platbook/internal/verify/models"
	dErrors "platbook/pkg/domain-errors"
)

// ResultConsumer feeds collaborator results from the results topic into the
// service.
type ResultConsumer struct {
	client  *kgo.Client
	service *Service
	logger  *slog.Logger
}

// NewResultConsumer wraps a client already configured with a consumer group
// on the verification results topic.
func NewResultConsumer(client *kgo.Client, service *Service, logger *slog.Logger) *ResultConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultConsumer{client: client, service: service, logger: logger}
}

// Run polls until the context is cancelled or the client is closed.
func (c *ResultConsumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "verification fetch failed",
				slog.String("topic", topic),
				slog.Int("partition", int(partition)),
				slog.Any("error", err))
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
		})
	}
}

func (c *ResultConsumer) handle(ctx context.Context, record *kgo.Record) {
	var rec models.VerificationRecord
	if err := json.Unmarshal(record.Value, &rec); err != nil {
		resultsMalformed.Inc()
		c.logger.WarnContext(ctx, "dropping malformed verification result",
			slog.Int64("offset", record.Offset),
			slog.Int("bytes", len(record.Value)),
			slog.Any("error", err))
		return
	}
	if err := c.service.Apply(ctx, rec); err != nil {
		if dErrors.Is(err, dErrors.CodeInvalidInput) {
			resultsMalformed.Inc()
			c.logger.WarnContext(ctx, "dropping invalid verification result",
				slog.String("property_id", rec.PropertyID.String()),
				slog.Int("bytes", len(record.Value)),
				slog.Any("error", err))
			return
		}
		c.logger.ErrorContext(ctx, "verification result failed",
			slog.String("property_id", rec.PropertyID.String()),
			slog.Any("error", err))
	}
}

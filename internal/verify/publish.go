package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"platbook/internal/platform/kafka"
	"platbook/internal/verify/models"
)

// KafkaPublisher announces verification requests on the requests topic.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: kafka.TopicVerificationRequests}
}

func (p *KafkaPublisher) Publish(ctx context.Context, req models.VerificationRequest) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal verification request: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(req.PropertyID.String()),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce verification request: %w", err)
	}
	return nil
}

// LocalPublisher logs requests instead of publishing them, for runs without
// brokers.
type LocalPublisher struct {
	logger *slog.Logger
}

func NewLocalPublisher(logger *slog.Logger) *LocalPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalPublisher{logger: logger}
}

func (p *LocalPublisher) Publish(ctx context.Context, req models.VerificationRequest) error {
	p.logger.InfoContext(ctx, "verification request",
		slog.String("property_id", req.PropertyID.String()),
		slog.String("address", req.Address))
	return nil
}

// Package dispatch delivers refresh requests to the collector collaborators
// that own re-scraping.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"platbook/internal/cache/models"
	"platbook/internal/platform/kafka"
	"platbook/pkg/platform/circuit"
	"platbook/pkg/platform/sentinel"
	"platbook/pkg/requestcontext"
)

var tracer = otel.Tracer("platbook/cache/dispatch")

// Kafka publishes refresh requests to the refresh topic. Collectors consume
// the topic and re-scrape on their own schedule; TTLs cap how stale served
// data can get, so delivery here is best effort and failures simply leave
// entries stale for the next sweep.
type Kafka struct {
	client  *kgo.Client
	topic   string
	limiter *rate.Limiter
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// KafkaOption configures a Kafka dispatcher.
type KafkaOption func(*Kafka)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		if l != nil {
			k.logger = l
		}
	}
}

// WithRateLimit caps outgoing refresh requests per second. Collectors carry
// their own scrape budgets; the cap keeps an invalidation storm from turning
// into a scrape storm.
func WithRateLimit(perSec float64, burst int) KafkaOption {
	return func(k *Kafka) {
		if perSec > 0 && burst > 0 {
			k.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// NewKafka constructs a dispatcher producing to the refresh requests topic.
func NewKafka(client *kgo.Client, opts ...KafkaOption) *Kafka {
	k := &Kafka{
		client:  client,
		topic:   kafka.TopicRefreshRequests,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		breaker: circuit.New("refresh-dispatch"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(k)
		}
	}
	return k
}

// Dispatch publishes one refresh request, keyed by property id so requests
// for the same property stay ordered.
func (k *Kafka) Dispatch(ctx context.Context, req models.RefreshRequest) error {
	ctx, span := tracer.Start(ctx, "dispatch.Refresh",
		trace.WithAttributes(
			attribute.String("property.id", req.PropertyID.String()),
			attribute.String("refresh.reason", req.Reason),
			attribute.Int("refresh.fields", len(req.Fields)),
		),
	)
	defer span.End()

	err := k.produce(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (k *Kafka) produce(ctx context.Context, req models.RefreshRequest) error {
	// An open breaker fails fast but still lets one probe per interval
	// through, so a recovered broker closes it again.
	if !k.breaker.Allow(requestcontext.Now(ctx)) {
		return fmt.Errorf("refresh dispatch: %w", sentinel.ErrUnavailable)
	}
	if err := k.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("refresh dispatch rate wait: %w", err)
	}

	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal refresh request: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(req.PropertyID.String()),
		Value: value,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := k.breaker.RecordFailure(); change.Opened {
			k.logger.ErrorContext(ctx, "refresh dispatch breaker opened",
				slog.String("topic", k.topic))
		}
		return fmt.Errorf("produce refresh request: %w", err)
	}
	if _, change := k.breaker.RecordSuccess(); change.Closed {
		k.logger.InfoContext(ctx, "refresh dispatch breaker closed",
			slog.String("topic", k.topic))
	}
	return nil
}

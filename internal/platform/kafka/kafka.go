package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Topics used by the engine. Invalidation events and verification results
// flow in; refresh and verification requests flow out toward the owning
// collaborators.
const (
	TopicInvalidationEvents   = "platbook.invalidation.events"
	TopicRefreshRequests      = "platbook.refresh.requests"
	TopicVerificationRequests = "platbook.verification.requests"
	TopicVerificationResults  = "platbook.verification.results"
)

// NewClient builds a franz-go client against the given brokers. Returns nil
// if no brokers are configured (the engine then runs without event transport).
func NewClient(brokers []string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("platbook"),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopics creates the engine's topics if they do not already exist.
// Single partition, single replica; operators scale topics out of band.
func EnsureTopics(ctx context.Context, client *kgo.Client, topics ...string) error {
	adm := kadm.NewClient(client)

	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

package pubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/eudr-packhouse/parcel-ingester/service"
)

// Publisher implements messaging.Publisher on a Pub/Sub topic
type Publisher struct {
	client     *pubsub.Client
	topic      *pubsub.Topic
	maxRetries int
	retryDelay time.Duration
}

// PublisherOption configures the Publisher
type PublisherOption func(*Publisher)

// WithMaxRetries sets the number of tries of a publication
func WithMaxRetries(n int) PublisherOption {
	return func(p *Publisher) {
		p.maxRetries = n
	}
}

// WithRetryDelay sets the delay between two tries
func WithRetryDelay(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.retryDelay = d
	}
}

// NewPublisher connects to the topic of the project.
// If PUBSUB_EMULATOR_HOST is defined, the emulator is used.
func NewPublisher(ctx context.Context, project, topic string, opts ...PublisherOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewPublisher.NewClient: %w", err)
	}
	p := &Publisher{
		client:     client,
		topic:      client.Topic(topic),
		maxRetries: 1,
		retryDelay: time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Publish implements messaging.Publisher
func (p *Publisher) Publish(ctx context.Context, data ...[]byte) error {
	return service.Retriable(ctx, func() error {
		results := make([]*pubsub.PublishResult, len(data))
		for i, d := range data {
			results[i] = p.topic.Publish(ctx, &pubsub.Message{Data: d})
		}
		var err error
		for _, r := range results {
			if _, e := r.Get(ctx); e != nil {
				err = service.MergeErrors(true, err, fmt.Errorf("Publish: %w", e))
			}
		}
		return err
	}, p.retryDelay, p.maxRetries)
}

// Close flushes the pending messages and closes the connection
func (p *Publisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

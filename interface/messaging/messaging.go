package messaging

import "context"

// Publisher publishes messages on a queue
type Publisher interface {
	// Publish sends the messages. It returns when all of them are acknowledged by the broker.
	Publish(ctx context.Context, data ...[]byte) error
}

package queue

import "context"

// Client publishes replay jobs. Implementations must be safe for concurrent
// use by request handlers.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

var _ Client = (*SQSClient)(nil)

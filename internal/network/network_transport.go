package network

import "context"

// NetworkTransport publishes applied transfers to downstream consumers.
type NetworkTransport interface {
	Start() error
	Stop() error
	Publish(ctx context.Context, topic string, key []byte, data []byte) error
}

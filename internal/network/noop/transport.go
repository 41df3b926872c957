package noop

import (
	"context"

	"github.com/6529-Collections/netflow/internal/network"
)

type NoopTransport struct{}

func (n *NoopTransport) Start() error {
	return nil
}

func (n *NoopTransport) Stop() error {
	return nil
}

func (n *NoopTransport) Publish(ctx context.Context, topic string, key []byte, data []byte) error {
	return nil
}

func NewNoopTransport() network.NetworkTransport {
	return &NoopTransport{}
}

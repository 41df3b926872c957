package noop

import (
	"context"
	"testing"

	"github.com/6529-Collections/netflow/internal/network"
	"github.com/stretchr/testify/assert"
)

func TestNoopTransport(t *testing.T) {
	var nt network.NetworkTransport = NewNoopTransport()
	assert.NoError(t, nt.Start())
	assert.NoError(t, nt.Publish(context.Background(), "some-topic", []byte("key"), []byte("hello")))
	assert.NoError(t, nt.Stop())
}

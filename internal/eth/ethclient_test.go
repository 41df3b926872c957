package eth

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/6529-Collections/netflow/internal/config"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useNodeUrl(t *testing.T, url string) {
	original := config.Get
	config.Get = func() config.Config {
		return config.Config{EthereumNodeUrl: url}
	}
	t.Cleanup(func() { config.Get = original })
}

func TestCreateEthClient_Websocket(t *testing.T) {
	srv := rpc.NewServer()
	t.Cleanup(srv.Stop)
	node := httptest.NewServer(srv.WebsocketHandler([]string{"*"}))
	t.Cleanup(node.Close)

	useNodeUrl(t, "ws://"+strings.TrimPrefix(node.URL, "http://"))

	client, err := createEthClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, client)
	client.Close()
}

func TestCreateEthClient_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{"empty", "", "EthereumNodeUrl is not set"},
		{"blank", "   ", "EthereumNodeUrl is not set"},
		{"http", "http://localhost:8545", "use a ws:// or wss:// endpoint"},
		{"https", "https://polygon-rpc.com", "use a ws:// or wss:// endpoint"},
		{"unknown scheme", "invalid://url", "failed to configure Ethereum client"},
		{"nothing listening", "ws://127.0.0.1:1", "failed to configure Ethereum client"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useNodeUrl(t, tt.url)

			client, err := createEthClient(context.Background())
			require.Error(t, err)
			assert.Nil(t, client)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

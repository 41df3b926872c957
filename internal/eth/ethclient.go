package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/6529-Collections/netflow/internal/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const dialTimeout = 15 * time.Second

var CreateEthClient = createEthClient

// EthClient is the slice of ethclient.Client the stream supervisor relies on.
type EthClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Close()
}

// createEthClient dials ETHEREUM_NODE_URL. Plain HTTP endpoints are refused
// because they cannot carry subscriptions.
func createEthClient(ctx context.Context) (EthClient, error) {
	nodeUrl := strings.TrimSpace(config.Get().EthereumNodeUrl)
	if nodeUrl == "" {
		return nil, errors.New("failed to configure Ethereum client - EthereumNodeUrl is not set")
	}
	if strings.HasPrefix(nodeUrl, "http://") || strings.HasPrefix(nodeUrl, "https://") {
		return nil, fmt.Errorf("failed to configure Ethereum client - %s cannot stream logs, use a ws:// or wss:// endpoint", nodeUrl)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	client, err := ethclient.DialContext(dialCtx, nodeUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to configure Ethereum client - %w", err)
	}
	return client, nil
}

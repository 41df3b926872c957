package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/6529-Collections/netflow/internal/config"
	"github.com/6529-Collections/netflow/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		LogZapMode:                "development",
		EthereumNodeUrl:           "ws://127.0.0.1:1",
		TokenContractAddress:      "0x455e53CBB86018Ac2B8092FdCd39d8444aFFC3F6",
		TokenSymbol:               "POL",
		TokenDecimals:             18,
		Confirmations:             2,
		MaxPendingBlockSpan:       64,
		DBPath:                    filepath.Join(dir, "sqlite", "netflow"),
		BadgerPath:                filepath.Join(dir, "badger"),
		LabeledAddressesLabel:     "binance",
		StoreUnlabeledTransfers:   true,
		RPCPort:                   freePort(t),
		ReplayMaxChunkSize:        100,
		StreamQueueSize:           8,
		ReconnectMaxAttempts:      1,
		ReconnectInitialBackoffMs: 1,
		ReconnectMaxBackoffMs:     2,
		LedgerApplyMaxAttempts:    1,
		KafkaTopic:                "netflow.transfers",
	}
}

func useConfig(t *testing.T, cfg config.Config) {
	original := config.Get
	config.Get = func() config.Config { return cfg }
	t.Cleanup(func() { config.Get = original })
}

func useSignals(t *testing.T) chan os.Signal {
	sigCh := make(chan os.Signal, 2)
	original := notifySignals
	notifySignals = func() (<-chan os.Signal, func()) {
		return sigCh, func() {}
	}
	t.Cleanup(func() { notifySignals = original })
	return sigCh
}

func waitForExit(t *testing.T, done <-chan int) int {
	t.Helper()
	select {
	case code := <-done:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return")
		return -1
	}
}

func TestRun_Version(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--version"}))
}

func TestRun_BadFlags(t *testing.T) {
	assert.Equal(t, 2, run([]string{"--no-such-flag"}))
	assert.Equal(t, 2, run([]string{"--api-only", "--indexer-only"}))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.TokenContractAddress = "0x1234"
	useConfig(t, cfg)

	assert.Equal(t, 1, run(nil))
}

func TestRun_ApiOnlyStartAndStop(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	sigCh := useSignals(t)

	done := make(chan int, 1)
	go func() { done <- run([]string{"--api-only"}) }()

	base := fmt.Sprintf("http://127.0.0.1:%d/api/v1/", cfg.RPCPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "labeled_addresses")
	require.NoError(t, err)
	var body struct {
		Data []struct {
			Address string `json:"address"`
			Label   string `json:"label"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Len(t, body.Data, len(config.DefaultLabeledAddresses))
	assert.Equal(t, "binance", body.Data[0].Label)

	resp, err = http.Get(base + "netflow")
	require.NoError(t, err)
	var netflow map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&netflow))
	resp.Body.Close()
	assert.Equal(t, "0.0", netflow["cumulative_net"])

	sigCh <- syscall.SIGTERM
	assert.Equal(t, 0, waitForExit(t, done))

	_, err = http.Get(base + "status")
	assert.Error(t, err, "RPC server should be closed")
}

func TestRun_IndexerFailureExitsNonZero(t *testing.T) {
	cfg := testConfig(t)
	useConfig(t, cfg)
	useSignals(t)

	original := eth.CreateEthClient
	eth.CreateEthClient = func(ctx context.Context) (eth.EthClient, error) {
		return nil, errors.New("connection refused")
	}
	t.Cleanup(func() { eth.CreateEthClient = original })

	done := make(chan int, 1)
	go func() { done <- run([]string{"--indexer-only"}) }()

	assert.Equal(t, 1, waitForExit(t, done))
}

func TestListenerConfig(t *testing.T) {
	cfg := testConfig(t)
	lc := listenerConfig(cfg)

	assert.Equal(t, cfg.TokenContractAddress, lc.Stream.Contract)
	assert.Equal(t, uint64(2), lc.Stream.Confirmations)
	assert.Equal(t, time.Millisecond, lc.Stream.InitialBackoff)
	assert.Equal(t, 2*time.Millisecond, lc.Stream.MaxBackoff)
	assert.Equal(t, uint64(64), lc.MaxPendingSpan)
	assert.Equal(t, 8, lc.QueueSize)
	assert.True(t, lc.StoreUnlabeled)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/6529-Collections/netflow/internal/config"
	"github.com/6529-Collections/netflow/internal/db"
	"github.com/6529-Collections/netflow/internal/eth"
	"github.com/6529-Collections/netflow/internal/ledger"
	pipeline "github.com/6529-Collections/netflow/internal/netflow"
	network_creator "github.com/6529-Collections/netflow/internal/network/creator"
	"github.com/6529-Collections/netflow/internal/rpc"
	"github.com/6529-Collections/netflow/internal/rpc/handlers"
	"github.com/6529-Collections/netflow/pkg/netflow"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var Version = "dev" // Overridden by release build script

const badgerGCInterval = 10 * time.Minute

var notifySignals = func() (<-chan os.Signal, func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh, func() { signal.Stop(sigCh) }
}

var exit = os.Exit

func main() {
	exit(run(os.Args[1:]))
}

func setupLogger(mode string) {
	logger := zap.Must(zap.NewProduction())
	if mode == "development" {
		logger = zap.Must(zap.NewDevelopment())
	}
	zap.ReplaceGlobals(logger)
}

func run(args []string) int {
	flags := pflag.NewFlagSet("netflow", pflag.ContinueOnError)
	apiOnly := flags.Bool("api-only", false, "serve the read API without indexing")
	indexerOnly := flags.Bool("indexer-only", false, "index transfers without serving the read API")
	showVersion := flags.Bool("version", false, "print the version and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println(Version)
		return 0
	}
	if *apiOnly && *indexerOnly {
		fmt.Fprintln(os.Stderr, "--api-only and --indexer-only cannot be combined")
		return 2
	}

	cfg := config.Get()
	setupLogger(cfg.LogZapMode)
	defer func() { _ = zap.L().Sync() }()

	if err := cfg.Validate(); err != nil {
		zap.L().Error("Refusing to start", zap.Error(err))
		return 1
	}

	zap.L().Info("Starting 6529-Collections/netflow...",
		zap.String("Version", Version),
		zap.String("token", cfg.TokenContractAddress),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Bool("apiOnly", *apiOnly),
		zap.Bool("indexerOnly", *indexerOnly),
	)

	// Main context: canceled when we want to stop normal operation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sqlite, err := db.OpenSqlite(cfg.DBPath)
	if err != nil {
		zap.L().Error("Failed to open SQLite", zap.Error(err))
		return 1
	}
	defer func() {
		if err := sqlite.Close(); err != nil {
			zap.L().Warn("Error closing DB", zap.Error(err))
		}
	}()

	badgerDb, err := db.OpenBadger(cfg.BadgerPath)
	if err != nil {
		zap.L().Error("Failed to open BadgerDB", zap.Error(err))
		return 1
	}
	defer func() {
		if err := badgerDb.Close(); err != nil {
			zap.L().Warn("Error closing BadgerDB", zap.Error(err))
		}
	}()
	go db.RunValueLogGC(ctx, badgerDb, badgerGCInterval)

	labeled, _ := cfg.LabeledAddressList()
	if err := storeLabeledAddresses(ctx, sqlite, labeled); err != nil {
		zap.L().Error("Failed to store labeled addresses", zap.Error(err))
		return 1
	}

	tracker := eth.NewBlockTracker(badgerDb)
	netflowLedger := ledger.NewLedger(sqlite)

	networkTransport := network_creator.GetNetworkTransport(cfg.KafkaBrokerList())
	if err := networkTransport.Start(); err != nil {
		zap.L().Error("Failed to start network transport", zap.Error(err))
		return 1
	}
	defer func() {
		if err := networkTransport.Stop(); err != nil {
			zap.L().Warn("Error closing network transport", zap.Error(err))
		}
	}()

	closeRpcServer := func() {}
	if !*indexerOnly {
		closeRpcServer = rpc.StartRPCServer(cfg.RPCPort, rpc.Dependencies{
			DB:        sqlite,
			Snapshots: netflowLedger,
			Progress:  tracker,
			Token:     handlers.TokenInfo{Symbol: cfg.TokenSymbol, Decimals: cfg.TokenDecimals},
		}, ctx)
	}

	listenerErr := make(chan error, 1)
	if !*apiOnly {
		classifier := pipeline.NewClassifier(labeled)
		zap.L().Info("Starting indexer", zap.Int("labeledAddresses", classifier.Size()))
		listener := netflow.NewNetflowListener(
			listenerConfig(cfg),
			netflowLedger,
			tracker,
			classifier,
			networkTransport,
		)
		go func() {
			listenerErr <- listener.Run(ctx)
		}()
	}

	// Catch up to two signals: first for graceful, second to force
	sigCh, stopSignals := notifySignals()
	defer stopSignals()

	code := 0
	listenerDone := *apiOnly
	select {
	case <-sigCh:
		zap.L().Info("Received shutdown signal, initiating graceful shutdown...")
	case err := <-listenerErr:
		listenerDone = true
		if err != nil {
			zap.L().Error("Indexer stopped with a fatal error", zap.Error(err))
			code = 1
		}
	}

	go func() {
		if _, ok := <-sigCh; ok {
			zap.L().Error("Received second signal, forcing shutdown")
			exit(1)
		}
	}()

	// 1. Stop new requests on RPC
	closeRpcServer()

	// 2. Cancel main context; the indexer flushes finalized blocks before returning
	cancel()
	if !listenerDone {
		if err := <-listenerErr; err != nil {
			zap.L().Error("Indexer failed during shutdown", zap.Error(err))
			code = 1
		}
	}

	zap.L().Info("Shutdown complete", zap.Int("exitCode", code))
	return code
}

func listenerConfig(cfg config.Config) netflow.ListenerConfig {
	return netflow.ListenerConfig{
		Stream: eth.SupervisorConfig{
			Contract:       cfg.TokenContractAddress,
			Confirmations:  cfg.Confirmations,
			MaxChunkSize:   cfg.ReplayMaxChunkSize,
			MaxAttempts:    cfg.ReconnectMaxAttempts,
			InitialBackoff: time.Duration(cfg.ReconnectInitialBackoffMs) * time.Millisecond,
			MaxBackoff:     time.Duration(cfg.ReconnectMaxBackoffMs) * time.Millisecond,
		},
		MaxPendingSpan:   cfg.MaxPendingBlockSpan,
		StoreUnlabeled:   cfg.StoreUnlabeledTransfers,
		QueueSize:        cfg.StreamQueueSize,
		ApplyMaxAttempts: cfg.LedgerApplyMaxAttempts,
		ApplyBackoff:     time.Duration(cfg.ReconnectInitialBackoffMs) * time.Millisecond,
		Topic:            cfg.KafkaTopic,
	}
}

func storeLabeledAddresses(ctx context.Context, sqlite *sql.DB, addresses []models.LabeledAddress) error {
	labeledDb := ledger.NewLabeledAddressDb()
	_, err := db.TxRunner(ctx, sqlite, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, labeledDb.Replace(tx, addresses)
	})
	if err == nil {
		zap.L().Info("Labeled addresses loaded", zap.Int("count", len(addresses)))
	}
	return err
}

package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/6529-Collections/netflow/internal/metrics"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var ErrReconnectBudgetExhausted = errors.New("reconnect budget exhausted")

var errStreamClosed = errors.New("stream closed by node")

type StreamKind int

const (
	StreamLog StreamKind = iota
	StreamHead
)

// StreamMessage is one item handed to the ingest side: either a raw log or a
// new head observation.
type StreamMessage struct {
	Kind StreamKind
	Log  types.Log
	Head models.BlockRef
}

// ResumeFunc returns the first block that has not been durably finalized.
// ok is false when nothing has been checkpointed yet.
type ResumeFunc func(ctx context.Context) (from uint64, ok bool, err error)

type StreamSupervisor interface {
	Run(ctx context.Context, out chan<- StreamMessage) error
}

type SupervisorConfig struct {
	Contract       string
	Confirmations  uint64
	MaxChunkSize   uint64
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type DefaultStreamSupervisor struct {
	cfg     SupervisorConfig
	dial    func(ctx context.Context) (EthClient, error)
	tracker BlockTracker
	resume  ResumeFunc

	// first head seen by this process, used as the replay origin until a
	// checkpoint exists
	streamStart    uint64
	hasStreamStart bool
}

func NewStreamSupervisor(cfg SupervisorConfig, tracker BlockTracker, resume ResumeFunc) *DefaultStreamSupervisor {
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = 2000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &DefaultStreamSupervisor{
		cfg:     cfg,
		dial:    CreateEthClient,
		tracker: tracker,
		resume:  resume,
	}
}

// Run keeps a session open until ctx is cancelled. It returns nil on
// cancellation and ErrReconnectBudgetExhausted once MaxAttempts consecutive
// sessions failed without reaching live streaming.
func (s *DefaultStreamSupervisor) Run(ctx context.Context, out chan<- StreamMessage) error {
	backoff := NewExponentialBackoff(s.cfg.InitialBackoff, s.cfg.MaxBackoff)
	failures := 0
	for {
		reachedLive, err := s.runSession(ctx, out)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errStreamClosed
		}
		if reachedLive {
			failures = 0
			backoff.Reset()
		}
		failures++
		metrics.Reconnects.Inc()
		zap.L().Warn("Stream session ended",
			zap.Error(err),
			zap.Int("failures", failures),
			zap.Int("maxAttempts", s.cfg.MaxAttempts),
			zap.Duration("nextBackoff", backoff.NextDuration),
		)
		if failures >= s.cfg.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectBudgetExhausted, failures, err)
		}
		if backoff.Wait(ctx) != nil {
			return nil
		}
	}
}

func (s *DefaultStreamSupervisor) runSession(ctx context.Context, out chan<- StreamMessage) (bool, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return false, err
	}
	defer client.Close()

	contract := common.HexToAddress(s.cfg.Contract)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{contract},
		Topics:    [][]common.Hash{{TransferTopic()}},
	}

	logs := make(chan types.Log, 256)
	logSub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return false, fmt.Errorf("failed to subscribe to logs: %w", err)
	}
	defer logSub.Unsubscribe()

	heads := make(chan *types.Header, 16)
	headSub, err := client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return false, fmt.Errorf("failed to subscribe to heads: %w", err)
	}
	defer headSub.Unsubscribe()

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to fetch head: %w", err)
	}
	head := headerRef(header)

	s.checkFinalizedCheckpoint(ctx, client)

	from, replay, err := s.replayStart(ctx, head)
	if err != nil {
		return false, err
	}
	if replay && from <= head.Number {
		if err := s.replay(ctx, client, query, from, head.Number, out); err != nil {
			return false, err
		}
	}
	// The head goes out only after the replayed logs so nothing downstream
	// finalizes past blocks that are still being reconciled.
	if err := emit(ctx, out, StreamMessage{Kind: StreamHead, Head: head}); err != nil {
		return false, err
	}

	zap.L().Info("Streaming live transfers", zap.Uint64("head", head.Number))
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case err := <-logSub.Err():
			return true, fmt.Errorf("log subscription failed: %w", nilErr(err))
		case err := <-headSub.Err():
			return true, fmt.Errorf("head subscription failed: %w", nilErr(err))
		case lg := <-logs:
			if err := emit(ctx, out, StreamMessage{Kind: StreamLog, Log: lg}); err != nil {
				return true, err
			}
		case h := <-heads:
			if h == nil {
				return true, errStreamClosed
			}
			if err := emit(ctx, out, StreamMessage{Kind: StreamHead, Head: headerRef(h)}); err != nil {
				return true, err
			}
		}
	}
}

func (s *DefaultStreamSupervisor) replayStart(ctx context.Context, head models.BlockRef) (uint64, bool, error) {
	from, ok, err := s.resume(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read resume point: %w", err)
	}
	if ok {
		return from, true, nil
	}
	if s.hasStreamStart {
		return s.streamStart + 1, true, nil
	}
	s.streamStart = head.Number
	s.hasStreamStart = true
	zap.L().Info("No checkpoint found, streaming from head", zap.Uint64("head", head.Number))
	return 0, false, nil
}

func (s *DefaultStreamSupervisor) replay(
	ctx context.Context,
	client EthClient,
	query ethereum.FilterQuery,
	from, to uint64,
	out chan<- StreamMessage,
) error {
	zap.L().Info("Reconciling missed blocks",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Uint64("chunkSize", s.cfg.MaxChunkSize),
	)
	for start := from; start <= to; {
		end := start + s.cfg.MaxChunkSize - 1
		if end > to {
			end = to
		}
		q := query
		q.FromBlock = new(big.Int).SetUint64(start)
		q.ToBlock = new(big.Int).SetUint64(end)
		logs, err := client.FilterLogs(ctx, q)
		if err != nil {
			zap.L().Error("Failed fetching logs",
				zap.Uint64("start", start),
				zap.Uint64("end", end),
				zap.Error(err),
			)
			return err
		}
		for _, lg := range logs {
			if err := emit(ctx, out, StreamMessage{Kind: StreamLog, Log: lg}); err != nil {
				return err
			}
		}
		start = end + 1
	}
	return nil
}

// checkFinalizedCheckpoint compares the persisted finalized block against the
// canonical chain. A mismatch means a reorg deeper than the confirmation window
// rewrote already applied history. It is reported, not corrected.
func (s *DefaultStreamSupervisor) checkFinalizedCheckpoint(ctx context.Context, client EthClient) {
	finalized, found, err := s.tracker.Finalized()
	if err != nil {
		zap.L().Warn("Could not read finalized checkpoint", zap.Error(err))
		return
	}
	if !found || finalized.Hash == "" {
		return
	}
	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(finalized.Number))
	if err != nil {
		zap.L().Warn("Could not fetch block header (reorg check)",
			zap.Uint64("block", finalized.Number),
			zap.Error(err),
		)
		return
	}
	chainHash := strings.ToLower(header.Hash().Hex())
	if chainHash != finalized.Hash {
		metrics.DeepReorgs.Inc()
		zap.L().Error("Deep reorg detected below the confirmation window",
			zap.Uint64("block", finalized.Number),
			zap.String("finalizedHash", finalized.Hash),
			zap.String("chainHash", chainHash),
		)
	}
}

func headerRef(h *types.Header) models.BlockRef {
	return models.BlockRef{
		Number:    h.Number.Uint64(),
		Hash:      strings.ToLower(h.Hash().Hex()),
		Timestamp: h.Time,
	}
}

func emit(ctx context.Context, out chan<- StreamMessage, msg StreamMessage) error {
	select {
	case out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func nilErr(err error) error {
	if err == nil {
		return errStreamClosed
	}
	return err
}

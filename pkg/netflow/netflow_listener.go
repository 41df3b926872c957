package netflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/6529-Collections/netflow/internal/eth"
	"github.com/6529-Collections/netflow/internal/ledger"
	"github.com/6529-Collections/netflow/internal/metrics"
	pipeline "github.com/6529-Collections/netflow/internal/netflow"
	"github.com/6529-Collections/netflow/internal/network"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"go.uber.org/zap"
)

// how many drain passes the ingest side waits for before an over-long
// pending buffer becomes fatal
const overflowDrainPasses = 3

type ListenerConfig struct {
	Stream           eth.SupervisorConfig
	MaxPendingSpan   uint64
	StoreUnlabeled   bool
	QueueSize        int
	ApplyMaxAttempts int
	ApplyBackoff     time.Duration
	Topic            string
}

var newStreamSupervisor = func(cfg eth.SupervisorConfig, tracker eth.BlockTracker, resume eth.ResumeFunc) eth.StreamSupervisor {
	return eth.NewStreamSupervisor(cfg, tracker, resume)
}

// NetflowListener runs the write path: stream messages are decoded,
// classified and buffered on one goroutine, finalized blocks are applied to
// the ledger and published on another.
type NetflowListener struct {
	cfg        ListenerConfig
	supervisor eth.StreamSupervisor
	decoder    eth.TransferLogDecoder
	classifier *pipeline.Classifier
	finalizer  *pipeline.Finalizer
	ledger     ledger.Ledger
	tracker    eth.BlockTracker
	transport  network.NetworkTransport

	wake    chan struct{}
	drained chan struct{}
}

func NewNetflowListener(
	cfg ListenerConfig,
	l ledger.Ledger,
	tracker eth.BlockTracker,
	classifier *pipeline.Classifier,
	transport network.NetworkTransport,
) *NetflowListener {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.ApplyMaxAttempts <= 0 {
		cfg.ApplyMaxAttempts = 1
	}
	listener := &NetflowListener{
		cfg:        cfg,
		decoder:    eth.NewTransferLogDecoder(cfg.Stream.Contract),
		classifier: classifier,
		finalizer:  pipeline.NewFinalizer(cfg.Stream.Confirmations, cfg.MaxPendingSpan),
		ledger:     l,
		tracker:    tracker,
		transport:  transport,
		wake:       make(chan struct{}, 1),
		drained:    make(chan struct{}, 1),
	}
	listener.supervisor = newStreamSupervisor(cfg.Stream, tracker, listener.resumePoint)
	return listener
}

// resumePoint is the first block that is neither applied nor checkpointed.
func (l *NetflowListener) resumePoint(ctx context.Context) (uint64, bool, error) {
	snap, err := l.ledger.Snapshot(ctx)
	if err != nil {
		return 0, false, err
	}
	finalized, found, err := l.tracker.Finalized()
	if err != nil {
		return 0, false, err
	}

	var from uint64
	ok := false
	if snap.LastAppliedBlock != nil {
		from = *snap.LastAppliedBlock + 1
		ok = true
	}
	if found && (!ok || finalized.Number+1 > from) {
		from = finalized.Number + 1
		ok = true
	}
	return from, ok, nil
}

// Run blocks until ctx is cancelled or the pipeline hits a fatal error. On
// cancellation blocks that are already finalizable are flushed to the ledger
// before it returns.
func (l *NetflowListener) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan eth.StreamMessage, l.cfg.QueueSize)
	supervisorErr := make(chan error, 1)
	go func() {
		supervisorErr <- l.supervisor.Run(runCtx, messages)
	}()

	drainErr := make(chan error, 1)
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		drainErr <- l.drainLoop(runCtx)
	}()

	err := l.ingest(runCtx, messages, supervisorErr, drainErr)
	cancel()
	<-drainDone

	if err != nil {
		return err
	}
	select {
	case err := <-drainErr:
		if err != nil {
			return err
		}
	default:
	}
	zap.L().Info("Flushing finalized blocks before shutdown")
	return l.drain(context.WithoutCancel(ctx))
}

func (l *NetflowListener) ingest(
	ctx context.Context,
	messages <-chan eth.StreamMessage,
	supervisorErr <-chan error,
	drainErr <-chan error,
) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-supervisorErr:
			if err == nil {
				return nil
			}
			return fmt.Errorf("stream supervisor stopped: %w", err)
		case err := <-drainErr:
			return err
		case msg := <-messages:
			var err error
			switch msg.Kind {
			case eth.StreamHead:
				err = l.handleHead(msg.Head)
			case eth.StreamLog:
				err = l.handleLog(msg)
			}
			if err != nil {
				if !errors.Is(err, pipeline.ErrPendingSpanExceeded) {
					return err
				}
				if err := l.relieve(ctx, err, drainErr); err != nil {
					return err
				}
			}
		}
	}
}

func (l *NetflowListener) handleHead(head models.BlockRef) error {
	if err := l.tracker.SetObservedHead(head); err != nil {
		zap.L().Warn("Failed to persist observed head", zap.Uint64("block", head.Number), zap.Error(err))
	}
	err := l.finalizer.ObserveHead(head)
	l.signal(l.wake)
	return err
}

func (l *NetflowListener) handleLog(msg eth.StreamMessage) error {
	metrics.LogsReceived.Inc()
	lg := msg.Log
	if lg.Removed {
		if l.finalizer.Discard(lg.BlockNumber, strings.ToLower(lg.BlockHash.Hex())) {
			zap.L().Info("Dropped buffered block removed by the node",
				zap.Uint64("block", lg.BlockNumber),
				zap.String("blockHash", lg.BlockHash.Hex()),
			)
		}
		return nil
	}

	ev, err := l.decoder.Decode(lg)
	if err != nil {
		metrics.MalformedLogs.Inc()
		zap.L().Warn("Dropping malformed log",
			zap.String("txHash", lg.TxHash.Hex()),
			zap.Uint("logIndex", lg.Index),
			zap.Error(err),
		)
		return nil
	}

	tag := l.classifier.Classify(ev)
	if tag == models.TagNone && !l.cfg.StoreUnlabeled {
		return nil
	}

	err = l.finalizer.Add(models.ClassifiedTransfer{Transfer: ev, Tag: tag})
	if errors.Is(err, pipeline.ErrBlockAlreadyReleased) {
		metrics.LateTransfers.Inc()
		zap.L().Warn("Transfer arrived after its block was finalized",
			zap.String("key", ev.Key().String()),
			zap.Uint64("block", ev.BlockNumber),
		)
		return nil
	}
	return err
}

// relieve asks the drain side for a few passes and gives up when the
// buffer still spans too many blocks.
func (l *NetflowListener) relieve(ctx context.Context, cause error, drainErr <-chan error) error {
	for pass := 0; pass < overflowDrainPasses; pass++ {
		select {
		case <-l.drained:
		default:
		}
		l.signal(l.wake)
		select {
		case <-ctx.Done():
			return nil
		case err := <-drainErr:
			return err
		case <-l.drained:
		}
		if !l.finalizer.Overflowing() {
			return nil
		}
	}
	head, _ := l.finalizer.Head()
	zap.L().Error("Pending buffer exceeded its span after draining",
		zap.Uint64("head", head.Number),
		zap.Int("pendingBlocks", l.finalizer.PendingBlocks()),
		zap.Uint64("maxSpan", l.cfg.MaxPendingSpan),
	)
	return cause
}

func (l *NetflowListener) drainLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
			if err := l.drain(ctx); err != nil {
				return err
			}
			l.signal(l.drained)
		}
	}
}

// drain applies everything the finalizer releases. Released blocks are no
// longer buffered, so each one runs its full retry budget on a context that
// cancellation cannot reach.
func (l *NetflowListener) drain(ctx context.Context) error {
	release := l.finalizer.Ready()
	applyCtx := context.WithoutCancel(ctx)

	for _, block := range release.Blocks {
		applied, err := l.applyBlock(applyCtx, block)
		if err != nil {
			return err
		}
		metrics.BlocksFinalized.Inc()
		l.publish(applyCtx, applied)
	}

	if release.HasThrough {
		return l.checkpoint(release.Through)
	}
	return nil
}

func (l *NetflowListener) applyBlock(ctx context.Context, block pipeline.FinalizedBlock) ([]models.ClassifiedTransfer, error) {
	backoff := eth.NewExponentialBackoff(l.cfg.ApplyBackoff, 10*l.cfg.ApplyBackoff)
	for attempt := 1; ; attempt++ {
		applied, err := l.ledger.ApplyBlock(ctx, block.Transfers)
		if err == nil {
			return applied, nil
		}
		if errors.Is(err, ledger.ErrOutOfOrderBlock) || attempt >= l.cfg.ApplyMaxAttempts {
			zap.L().Error("Failed to apply finalized block",
				zap.Uint64("block", block.Ref.Number),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to apply block %d: %w", block.Ref.Number, err)
		}
		metrics.LedgerRetries.Inc()
		zap.L().Warn("Retrying ledger apply",
			zap.Uint64("block", block.Ref.Number),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		_ = backoff.Wait(ctx)
	}
}

func (l *NetflowListener) checkpoint(through models.BlockRef) error {
	current, found, err := l.tracker.Finalized()
	if err != nil {
		return fmt.Errorf("failed to read finalized checkpoint: %w", err)
	}
	if found && current.Number >= through.Number {
		return nil
	}
	if err := l.tracker.SetFinalized(through); err != nil {
		return fmt.Errorf("failed to persist finalized checkpoint: %w", err)
	}
	return nil
}

func (l *NetflowListener) publish(ctx context.Context, applied []models.ClassifiedTransfer) {
	if l.transport == nil || l.cfg.Topic == "" {
		return
	}
	for _, ct := range applied {
		if ct.Tag == models.TagNone {
			continue
		}
		msg := models.NewAppliedTransfer(ct)
		msg.FromLabel = l.classifier.Label(ct.Transfer.From)
		msg.ToLabel = l.classifier.Label(ct.Transfer.To)
		data, err := json.Marshal(msg)
		if err != nil {
			metrics.PublishFailures.Inc()
			zap.L().Error("Failed to encode applied transfer", zap.Error(err))
			continue
		}
		key := ct.Transfer.Key().String()
		if err := l.transport.Publish(ctx, l.cfg.Topic, []byte(key), data); err != nil {
			metrics.PublishFailures.Inc()
			zap.L().Error("Failed to publish applied transfer",
				zap.String("key", key),
				zap.String("topic", l.cfg.Topic),
				zap.Error(err),
			)
		}
	}
}

func (l *NetflowListener) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

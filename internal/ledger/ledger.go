package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/6529-Collections/netflow/internal/metrics"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"go.uber.org/zap"
)

var ErrOutOfOrderBlock = errors.New("transfer block precedes last applied block")

// SnapshotReader is the read-only view handed to the API.
type SnapshotReader interface {
	Snapshot(ctx context.Context) (models.NetflowAggregate, error)
}

type Ledger interface {
	SnapshotReader
	Apply(ctx context.Context, ct models.ClassifiedTransfer) (bool, error)
	ApplyBlock(ctx context.Context, transfers []models.ClassifiedTransfer) ([]models.ClassifiedTransfer, error)
}

// SqliteLedger is the single writer of the aggregate. Each apply call is one
// SQLite transaction: the raw transfer rows and the aggregate row commit
// together or not at all.
type SqliteLedger struct {
	mu         sync.Mutex
	db         *sql.DB
	transferDb TransferDb
	stateDb    NetflowStateDb
}

func NewLedger(sqlite *sql.DB) *SqliteLedger {
	return &SqliteLedger{
		db:         sqlite,
		transferDb: NewTransferDb(),
		stateDb:    NewNetflowStateDb(),
	}
}

// Apply applies a single transfer. It returns false when the transfer had
// already been applied.
func (l *SqliteLedger) Apply(ctx context.Context, ct models.ClassifiedTransfer) (bool, error) {
	applied, err := l.ApplyBlock(ctx, []models.ClassifiedTransfer{ct})
	if err != nil {
		return false, err
	}
	return len(applied) == 1, nil
}

// ApplyBlock applies the transfers of one finalized block atomically and
// returns those that were not applied before.
func (l *SqliteLedger) ApplyBlock(ctx context.Context, transfers []models.ClassifiedTransfer) ([]models.ClassifiedTransfer, error) {
	if len(transfers) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	applied, err := db.TxRunner(ctx, l.db, func(tx *sql.Tx) ([]models.ClassifiedTransfer, error) {
		state, err := l.stateDb.GetState(tx)
		if err != nil {
			return nil, err
		}

		var applied []models.ClassifiedTransfer
		for _, ct := range transfers {
			inserted, err := l.transferDb.StoreTransfer(tx, ct)
			if err != nil {
				return nil, fmt.Errorf("failed to store transfer %s: %w", ct.Transfer.Key(), err)
			}
			if !inserted {
				metrics.DuplicateTransfers.Inc()
				continue
			}
			if err := accumulate(&state, ct); err != nil {
				return nil, err
			}
			applied = append(applied, ct)
		}
		// Duplicates were stored by an earlier apply, so last_applied_block already covers them.
		if len(applied) == 0 {
			return nil, nil
		}
		if err := l.stateDb.UpdateState(tx, state); err != nil {
			return nil, err
		}
		return applied, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ApplyDuration.Observe(time.Since(start).Seconds())
	for _, ct := range applied {
		metrics.TransfersApplied.WithLabelValues(ct.Tag.String()).Inc()
	}
	if len(applied) > 0 {
		zap.L().Debug("Applied transfers",
			zap.Uint64("block", applied[0].Transfer.BlockNumber),
			zap.Int("applied", len(applied)),
			zap.Int("duplicates", len(transfers)-len(applied)),
		)
	}
	return applied, nil
}

func (l *SqliteLedger) Snapshot(ctx context.Context) (models.NetflowAggregate, error) {
	if err := ctx.Err(); err != nil {
		return models.NetflowAggregate{}, err
	}
	return l.stateDb.GetState(l.db)
}

func accumulate(state *models.NetflowAggregate, ct models.ClassifiedTransfer) error {
	block := ct.Transfer.BlockNumber
	if state.LastAppliedBlock != nil && block < *state.LastAppliedBlock {
		return fmt.Errorf("%w: transfer %s in block %d, last applied block %d",
			ErrOutOfOrderBlock, ct.Transfer.Key(), block, *state.LastAppliedBlock)
	}
	if ct.Tag.Inbound() {
		state.CumulativeIn.Add(state.CumulativeIn, ct.Transfer.Amount)
	}
	if ct.Tag.Outbound() {
		state.CumulativeOut.Add(state.CumulativeOut, ct.Transfer.Amount)
	}
	if state.LastAppliedBlock == nil || block > *state.LastAppliedBlock {
		b := block
		state.LastAppliedBlock = &b
	}
	return nil
}

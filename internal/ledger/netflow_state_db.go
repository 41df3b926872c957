package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

// NetflowStateDb reads and writes the singleton aggregate row.
type NetflowStateDb interface {
	GetState(rq db.QueryRunner) (models.NetflowAggregate, error)
	UpdateState(tx *sql.Tx, state models.NetflowAggregate) error
}

func NewNetflowStateDb() NetflowStateDb {
	return &NetflowStateDbImpl{}
}

type NetflowStateDbImpl struct{}

func (n *NetflowStateDbImpl) GetState(rq db.QueryRunner) (models.NetflowAggregate, error) {
	var in, out string
	var lastBlock sql.NullInt64
	err := rq.QueryRow(`SELECT cumulative_in, cumulative_out, last_applied_block FROM netflow_state WHERE id = 1`).
		Scan(&in, &out, &lastBlock)
	if err != nil {
		return models.NetflowAggregate{}, fmt.Errorf("failed to read netflow state: %w", err)
	}

	state := models.NewNetflowAggregate()
	if _, ok := state.CumulativeIn.SetString(in, 10); !ok {
		return models.NetflowAggregate{}, fmt.Errorf("corrupt cumulative_in %q", in)
	}
	if _, ok := state.CumulativeOut.SetString(out, 10); !ok {
		return models.NetflowAggregate{}, fmt.Errorf("corrupt cumulative_out %q", out)
	}
	if lastBlock.Valid {
		b := uint64(lastBlock.Int64)
		state.LastAppliedBlock = &b
	}
	return state, nil
}

func (n *NetflowStateDbImpl) UpdateState(tx *sql.Tx, state models.NetflowAggregate) error {
	var lastBlock interface{}
	if state.LastAppliedBlock != nil {
		lastBlock = *state.LastAppliedBlock
	}
	res, err := tx.Exec(`UPDATE netflow_state SET cumulative_in = ?, cumulative_out = ?, last_applied_block = ? WHERE id = 1`,
		orZero(state.CumulativeIn), orZero(state.CumulativeOut), lastBlock)
	if err != nil {
		return fmt.Errorf("failed to update netflow state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return errors.New("netflow state row missing")
	}
	return nil
}

func orZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

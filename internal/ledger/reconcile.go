package ledger

import (
	"fmt"
	"math/big"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

// RecomputeAggregate rebuilds the aggregate from the stored transfer rows
// and returns it with the number of rows read.
func RecomputeAggregate(rq db.QueryRunner) (models.NetflowAggregate, int, error) {
	rows, err := rq.Query(`SELECT amount, tag, block_number FROM token_transfers ORDER BY block_number, log_index`)
	if err != nil {
		return models.NetflowAggregate{}, 0, err
	}
	defer rows.Close()

	agg := models.NewNetflowAggregate()
	count := 0
	for rows.Next() {
		var amount string
		var tag models.Tag
		var block uint64
		if err := rows.Scan(&amount, &tag, &block); err != nil {
			return models.NetflowAggregate{}, count, err
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return models.NetflowAggregate{}, count, fmt.Errorf("corrupt amount %q in block %d", amount, block)
		}
		if tag.Inbound() {
			agg.CumulativeIn.Add(agg.CumulativeIn, value)
		}
		if tag.Outbound() {
			agg.CumulativeOut.Add(agg.CumulativeOut, value)
		}
		b := block
		agg.LastAppliedBlock = &b
		count++
	}
	return agg, count, rows.Err()
}

// AggregateDiff lists the fields where two aggregates disagree.
func AggregateDiff(stored, recomputed models.NetflowAggregate) []string {
	var diffs []string
	if stored.CumulativeIn.Cmp(recomputed.CumulativeIn) != 0 {
		diffs = append(diffs, fmt.Sprintf("cumulative_in: stored %s, recomputed %s", stored.CumulativeIn, recomputed.CumulativeIn))
	}
	if stored.CumulativeOut.Cmp(recomputed.CumulativeOut) != 0 {
		diffs = append(diffs, fmt.Sprintf("cumulative_out: stored %s, recomputed %s", stored.CumulativeOut, recomputed.CumulativeOut))
	}
	if blockString(stored.LastAppliedBlock) != blockString(recomputed.LastAppliedBlock) {
		diffs = append(diffs, fmt.Sprintf("last_applied_block: stored %s, recomputed %s",
			blockString(stored.LastAppliedBlock), blockString(recomputed.LastAppliedBlock)))
	}
	return diffs
}

func blockString(b *uint64) string {
	if b == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *b)
}

package ledger

import (
	"database/sql"
	"fmt"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

// TransferDb stores raw transfers keyed by (tx_hash, log_index).
type TransferDb interface {
	// StoreTransfer reports false when the transfer was already stored.
	StoreTransfer(tx *sql.Tx, ct models.ClassifiedTransfer) (bool, error)
	GetTransfer(rq db.QueryRunner, key models.TransferKey) (*TransferRow, error)
	db.PaginatedQuerier[TransferRow]
}

func NewTransferDb() TransferDb {
	return &TransferDbImpl{}
}

type TransferDbImpl struct{}

// TransferRow is a stored transfer as exposed by the read API.
type TransferRow struct {
	TxHash           string     `json:"tx_hash"`
	LogIndex         uint64     `json:"log_index"`
	BlockNumber      uint64     `json:"block_number"`
	BlockHash        string     `json:"block_hash"`
	TransactionIndex uint64     `json:"transaction_index"`
	Contract         string     `json:"contract"`
	From             string     `json:"from"`
	To               string     `json:"to"`
	Amount           string     `json:"amount"`
	Tag              models.Tag `json:"tag"`
}

const transferColumns = `tx_hash, log_index, block_number, block_hash, transaction_index,
			contract, from_address, to_address, amount, tag`

func (r *TransferRow) ScanRow(scanner db.RowScanner) error {
	return scanner.Scan(
		&r.TxHash, &r.LogIndex, &r.BlockNumber, &r.BlockHash, &r.TransactionIndex,
		&r.Contract, &r.From, &r.To, &r.Amount, &r.Tag,
	)
}

func (t *TransferDbImpl) StoreTransfer(tx *sql.Tx, ct models.ClassifiedTransfer) (bool, error) {
	ev := ct.Transfer
	if ev.Amount == nil {
		return false, fmt.Errorf("transfer %s has no amount", ev.Key())
	}
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO token_transfers (`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.TxHash, ev.LogIndex, ev.BlockNumber, ev.BlockHash, ev.TxIndex,
		ev.Contract, ev.From, ev.To, ev.Amount.String(), string(ct.Tag))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (t *TransferDbImpl) GetTransfer(rq db.QueryRunner, key models.TransferKey) (*TransferRow, error) {
	row := rq.QueryRow(`SELECT `+transferColumns+` FROM token_transfers WHERE tx_hash = ? AND log_index = ?`,
		key.TxHash, key.LogIndex)
	var transfer TransferRow
	err := transfer.ScanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

// GetPaginatedResponseForQuery lists stored transfers ordered by block and
// log index.
func (t *TransferDbImpl) GetPaginatedResponseForQuery(rq db.QueryRunner, queryOptions db.QueryOptions, queryParams []interface{}) (int, []*TransferRow, error) {
	return db.GetPaginatedResponseForQuery(
		"token_transfers",
		rq,
		`SELECT `+transferColumns+` FROM token_transfers`,
		queryOptions,
		[]string{"block_number", "log_index"},
		queryParams,
		func() *TransferRow { return &TransferRow{} },
	)
}

package ledger

import (
	"database/sql"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

type LabeledAddressDb interface {
	Upsert(tx *sql.Tx, addresses []models.LabeledAddress) error
	// Replace makes the stored set exactly addresses.
	Replace(tx *sql.Tx, addresses []models.LabeledAddress) error
	GetAll(rq db.QueryRunner) ([]models.LabeledAddress, error)
}

func NewLabeledAddressDb() LabeledAddressDb {
	return &LabeledAddressDbImpl{}
}

type LabeledAddressDbImpl struct{}

func (l *LabeledAddressDbImpl) Upsert(tx *sql.Tx, addresses []models.LabeledAddress) error {
	stmt, err := tx.Prepare(`
		INSERT INTO labeled_addresses (address, label) VALUES (?, ?)
		ON CONFLICT (address) DO UPDATE SET label = excluded.label`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range addresses {
		if _, err := stmt.Exec(a.Address, a.Label); err != nil {
			return err
		}
	}
	return nil
}

func (l *LabeledAddressDbImpl) Replace(tx *sql.Tx, addresses []models.LabeledAddress) error {
	if _, err := tx.Exec(`DELETE FROM labeled_addresses`); err != nil {
		return err
	}
	return l.Upsert(tx, addresses)
}

func (l *LabeledAddressDbImpl) GetAll(rq db.QueryRunner) ([]models.LabeledAddress, error) {
	rows, err := rq.Query(`SELECT address, label FROM labeled_addresses ORDER BY address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []models.LabeledAddress
	for rows.Next() {
		var a models.LabeledAddress
		if err := rows.Scan(&a.Address, &a.Label); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

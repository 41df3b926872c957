package models

import "math/big"

// NetflowAggregate is the singleton running total owned by the ledger.
// LastAppliedBlock is nil until the first transfer has been applied.
type NetflowAggregate struct {
	CumulativeIn     *big.Int
	CumulativeOut    *big.Int
	LastAppliedBlock *uint64
}

func NewNetflowAggregate() NetflowAggregate {
	return NetflowAggregate{
		CumulativeIn:  new(big.Int),
		CumulativeOut: new(big.Int),
	}
}

func (a NetflowAggregate) Net() *big.Int {
	return new(big.Int).Sub(a.CumulativeIn, a.CumulativeOut)
}

// AppliedTransfer is the message published downstream once a transfer has been
// durably applied.
type AppliedTransfer struct {
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	BlockNumber uint64 `json:"block_number"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	Tag         Tag    `json:"tag"`
	FromLabel   string `json:"from_label,omitempty"`
	ToLabel     string `json:"to_label,omitempty"`
}

func NewAppliedTransfer(ct ClassifiedTransfer) AppliedTransfer {
	return AppliedTransfer{
		TxHash:      ct.Transfer.TxHash,
		LogIndex:    ct.Transfer.LogIndex,
		BlockNumber: ct.Transfer.BlockNumber,
		From:        ct.Transfer.From,
		To:          ct.Transfer.To,
		Amount:      ct.Transfer.Amount.String(),
		Tag:         ct.Tag,
	}
}

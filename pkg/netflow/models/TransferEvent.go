package models

import (
	"fmt"
	"math/big"
)

type Tag string

func (t Tag) String() string {
	return string(t)
}

const (
	TagNone Tag = "NONE"
	TagIn   Tag = "IN"
	TagOut  Tag = "OUT"
	TagBoth Tag = "BOTH"
)

// Inbound reports whether the transfer credits cumulativeIn.
func (t Tag) Inbound() bool {
	return t == TagIn || t == TagBoth
}

// Outbound reports whether the transfer credits cumulativeOut.
func (t Tag) Outbound() bool {
	return t == TagOut || t == TagBoth
}

type BlockRef struct {
	Number    uint64
	Hash      string
	Timestamp uint64
}

type TransferKey struct {
	TxHash   string
	LogIndex uint64
}

func (k TransferKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxHash, k.LogIndex)
}

// TransferEvent is one decoded ERC-20 Transfer log. Addresses and hashes are
// lower-case 0x hex.
type TransferEvent struct {
	TxHash      string
	LogIndex    uint64
	TxIndex     uint64
	BlockNumber uint64
	BlockHash   string
	Contract    string
	From        string
	To          string
	Amount      *big.Int
}

func (t TransferEvent) Key() TransferKey {
	return TransferKey{TxHash: t.TxHash, LogIndex: t.LogIndex}
}

type ClassifiedTransfer struct {
	Transfer TransferEvent
	Tag      Tag
}

type LabeledAddress struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

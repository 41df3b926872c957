package models

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagLegs(t *testing.T) {
	tests := []struct {
		tag      Tag
		inbound  bool
		outbound bool
	}{
		{TagNone, false, false},
		{TagIn, true, false},
		{TagOut, false, true},
		{TagBoth, true, true},
	}
	for _, tc := range tests {
		t.Run(tc.tag.String(), func(t *testing.T) {
			assert.Equal(t, tc.inbound, tc.tag.Inbound())
			assert.Equal(t, tc.outbound, tc.tag.Outbound())
		})
	}
}

func TestNetflowAggregate_Net(t *testing.T) {
	agg := NewNetflowAggregate()
	assert.Equal(t, "0", agg.Net().String())

	agg.CumulativeIn.SetInt64(5)
	agg.CumulativeOut.SetInt64(7)
	assert.Equal(t, "-2", agg.Net().String())
	assert.Equal(t, "5", agg.CumulativeIn.String(), "Net must not mutate the sums")
}

func TestTransferKey(t *testing.T) {
	ev := TransferEvent{TxHash: "0xabc", LogIndex: 3, Amount: big.NewInt(1)}
	assert.Equal(t, TransferKey{TxHash: "0xabc", LogIndex: 3}, ev.Key())
	assert.Equal(t, "0xabc:3", ev.Key().String())
}

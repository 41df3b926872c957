package handlers

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/6529-Collections/netflow/internal/ledger"
	"github.com/shopspring/decimal"
)

type TokenInfo struct {
	Symbol   string
	Decimals int32
}

type NetflowResponse struct {
	Symbol           string  `json:"symbol"`
	Decimals         int32   `json:"decimals"`
	CumulativeIn     string  `json:"cumulative_in"`
	CumulativeOut    string  `json:"cumulative_out"`
	CumulativeNet    string  `json:"cumulative_net"`
	LastAppliedBlock *uint64 `json:"last_applied_block"`
}

// NetflowGetHandler reports the last committed aggregate in token units.
func NetflowGetHandler(r *http.Request, snapshots ledger.SnapshotReader, token TokenInfo) (NetflowResponse, error) {
	snap, err := snapshots.Snapshot(r.Context())
	if err != nil {
		return NetflowResponse{}, err
	}
	return NetflowResponse{
		Symbol:           token.Symbol,
		Decimals:         token.Decimals,
		CumulativeIn:     FormatAmount(snap.CumulativeIn, token.Decimals),
		CumulativeOut:    FormatAmount(snap.CumulativeOut, token.Decimals),
		CumulativeNet:    FormatAmount(snap.Net(), token.Decimals),
		LastAppliedBlock: snap.LastAppliedBlock,
	}, nil
}

// FormatAmount scales a raw integer amount by decimals. The result always has
// a fractional part ("1.0", "-0.5", "0.0").
func FormatAmount(raw *big.Int, decimals int32) string {
	if raw == nil {
		raw = new(big.Int)
	}
	s := decimal.NewFromBigInt(raw, -decimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

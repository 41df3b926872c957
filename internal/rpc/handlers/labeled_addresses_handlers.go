package handlers

import (
	"net/http"

	"github.com/6529-Collections/netflow/internal/db"
	"github.com/6529-Collections/netflow/internal/ledger"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

type LabeledAddressesResponse struct {
	Data []models.LabeledAddress `json:"data"`
}

var labeledAddressDb ledger.LabeledAddressDb = ledger.NewLabeledAddressDb()

func LabeledAddressesGetHandler(r *http.Request, rq db.QueryRunner) (LabeledAddressesResponse, error) {
	addresses, err := labeledAddressDb.GetAll(rq)
	if err != nil {
		return LabeledAddressesResponse{}, err
	}
	if addresses == nil {
		addresses = []models.LabeledAddress{}
	}
	return LabeledAddressesResponse{Data: addresses}, nil
}

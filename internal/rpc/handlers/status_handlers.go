package handlers

import (
	"net/http"

	"github.com/6529-Collections/netflow/pkg/netflow/models"
)

// ChainProgress is the read side of the block tracker.
type ChainProgress interface {
	ObservedHead() (models.BlockRef, bool, error)
	Finalized() (models.BlockRef, bool, error)
}

type StatusResponse struct {
	Status         string  `json:"status"`
	ObservedHead   *uint64 `json:"observed_head"`
	FinalizedBlock *uint64 `json:"finalized_block"`
}

func StatusGetHandler(r *http.Request, progress ChainProgress) (StatusResponse, error) {
	resp := StatusResponse{Status: "OK"}
	if progress == nil {
		return resp, nil
	}
	head, found, err := progress.ObservedHead()
	if err != nil {
		return StatusResponse{}, err
	}
	if found {
		resp.ObservedHead = &head.Number
	}
	finalized, found, err := progress.Finalized()
	if err != nil {
		return StatusResponse{}, err
	}
	if found {
		resp.FinalizedBlock = &finalized.Number
	}
	return resp, nil
}

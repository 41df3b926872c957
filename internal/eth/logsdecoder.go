package eth

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrMalformedLog = errors.New("malformed transfer log")

var erc20ABI abi.ABI
var erc20TransferSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

func init() {
	erc20Abi, err := abi.JSON(strings.NewReader(`[
    {
        "anonymous": false,
        "inputs": [
            {"indexed": true, "name": "from",  "type": "address"},
            {"indexed": true, "name": "to",    "type": "address"},
            {"indexed": false,"name": "value", "type": "uint256"}
        ],
        "name": "Transfer",
        "type": "event"
    }
	]`))
	if err != nil {
		panic("failed to parse ERC20 ABI")
	}
	erc20ABI = erc20Abi
}

type TransferLogDecoder interface {
	Decode(lg types.Log) (models.TransferEvent, error)
}

type DefaultTransferLogDecoder struct {
	contract common.Address
}

func NewTransferLogDecoder(contract string) *DefaultTransferLogDecoder {
	return &DefaultTransferLogDecoder{contract: common.HexToAddress(contract)}
}

// TransferTopic is topic0 of Transfer(address,address,uint256).
func TransferTopic() common.Hash {
	return erc20TransferSig
}

func (d *DefaultTransferLogDecoder) Decode(lg types.Log) (models.TransferEvent, error) {
	if lg.Address != d.contract {
		return models.TransferEvent{}, fmt.Errorf("%w: emitted by %s", ErrMalformedLog, lg.Address.Hex())
	}
	if len(lg.Topics) != 3 {
		return models.TransferEvent{}, fmt.Errorf("%w: expected 3 topics, got %d", ErrMalformedLog, len(lg.Topics))
	}
	if lg.Topics[0] != erc20TransferSig {
		return models.TransferEvent{}, fmt.Errorf("%w: unexpected signature %s", ErrMalformedLog, lg.Topics[0].Hex())
	}
	from, err := topicToAddress(lg.Topics[1])
	if err != nil {
		return models.TransferEvent{}, err
	}
	to, err := topicToAddress(lg.Topics[2])
	if err != nil {
		return models.TransferEvent{}, err
	}
	if len(lg.Data) != 32 {
		return models.TransferEvent{}, fmt.Errorf("%w: expected 32 bytes of data, got %d", ErrMalformedLog, len(lg.Data))
	}
	values, err := erc20ABI.Events["Transfer"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil || len(values) != 1 {
		return models.TransferEvent{}, fmt.Errorf("%w: cannot unpack amount: %v", ErrMalformedLog, err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return models.TransferEvent{}, fmt.Errorf("%w: amount is %T", ErrMalformedLog, values[0])
	}

	return models.TransferEvent{
		TxHash:      strings.ToLower(lg.TxHash.Hex()),
		LogIndex:    uint64(lg.Index),
		TxIndex:     uint64(lg.TxIndex),
		BlockNumber: lg.BlockNumber,
		BlockHash:   strings.ToLower(lg.BlockHash.Hex()),
		Contract:    strings.ToLower(lg.Address.Hex()),
		From:        strings.ToLower(from.Hex()),
		To:          strings.ToLower(to.Hex()),
		Amount:      amount,
	}, nil
}

func topicToAddress(topic common.Hash) (common.Address, error) {
	for _, b := range topic[:common.HashLength-common.AddressLength] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("%w: address topic %s has non-zero padding", ErrMalformedLog, topic.Hex())
		}
	}
	return common.BytesToAddress(topic[common.HashLength-common.AddressLength:]), nil
}

package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventLog is one raw log entry returned by the RPC filter, decoupled from
// go-ethereum's types so consumers can fabricate logs in tests.
type EventLog struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    int64
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
}

// OrderFilled is a decoded CTF exchange fill event. Asset ID 0 denotes the
// collateral (USDC) leg; a non-zero asset ID is an outcome token.
type OrderFilled struct {
	OrderHash    common.Hash
	Maker        common.Address
	Taker        common.Address
	MakerAssetID *big.Int
	TakerAssetID *big.Int
	MakerAmount  *big.Int
	TakerAmount  *big.Int
	Fee          *big.Int

	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    int64
}

// ParseOrderFilled decodes an OrderFilled log. The event carries the order
// hash, maker, and taker as indexed topics and five uint256 words in data:
// makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled, fee.
func ParseOrderFilled(l EventLog) (OrderFilled, error) {
	if len(l.Topics) != 4 {
		return OrderFilled{}, fmt.Errorf("chain: order filled log %s[%d]: want 4 topics, got %d",
			l.TxHash.Hex(), l.LogIndex, len(l.Topics))
	}
	if len(l.Data) != 5*32 {
		return OrderFilled{}, fmt.Errorf("chain: order filled log %s[%d]: want 160 data bytes, got %d",
			l.TxHash.Hex(), l.LogIndex, len(l.Data))
	}

	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(l.Data[i*32 : (i+1)*32])
	}

	return OrderFilled{
		OrderHash:    l.Topics[1],
		Maker:        common.BytesToAddress(l.Topics[2].Bytes()),
		Taker:        common.BytesToAddress(l.Topics[3].Bytes()),
		MakerAssetID: word(0),
		TakerAssetID: word(1),
		MakerAmount:  word(2),
		TakerAmount:  word(3),
		Fee:          word(4),
		BlockNumber:  l.BlockNumber,
		TxHash:       l.TxHash,
		LogIndex:     l.LogIndex,
	}, nil
}

package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func fillLog(maker, taker common.Address, words ...int64) EventLog {
	data := make([]byte, 0, len(words)*32)
	for _, w := range words {
		data = append(data, common.LeftPadBytes(big.NewInt(w).Bytes(), 32)...)
	}
	return EventLog{
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xbeef"),
		LogIndex:    3,
		Topics: []common.Hash{
			common.HexToHash("0xd0a0"),
			common.HexToHash("0x01"),
			common.BytesToHash(maker.Bytes()),
			common.BytesToHash(taker.Bytes()),
		},
		Data: data,
	}
}

func TestParseOrderFilled(t *testing.T) {
	t.Parallel()

	maker := common.HexToAddress("0x1111111111111111111111111111111111111111")
	taker := common.HexToAddress("0x2222222222222222222222222222222222222222")

	// Maker pays 25 USDC (asset 0) for 48.07 shares of token 777.
	ev, err := ParseOrderFilled(fillLog(maker, taker, 0, 777, 25_000_000, 48_076_923, 0))
	if err != nil {
		t.Fatalf("ParseOrderFilled: %v", err)
	}

	if ev.Maker != maker || ev.Taker != taker {
		t.Errorf("parties = %s / %s", ev.Maker.Hex(), ev.Taker.Hex())
	}
	if ev.MakerAssetID.Sign() != 0 || ev.TakerAssetID.Int64() != 777 {
		t.Errorf("asset ids = %s / %s", ev.MakerAssetID, ev.TakerAssetID)
	}
	if ev.MakerAmount.Int64() != 25_000_000 || ev.TakerAmount.Int64() != 48_076_923 {
		t.Errorf("amounts = %s / %s", ev.MakerAmount, ev.TakerAmount)
	}
	if ev.BlockNumber != 42 || ev.LogIndex != 3 {
		t.Errorf("position = block %d index %d", ev.BlockNumber, ev.LogIndex)
	}
}

func TestParseOrderFilledMalformed(t *testing.T) {
	t.Parallel()

	// Too few topics.
	if _, err := ParseOrderFilled(EventLog{Topics: []common.Hash{{}}}); err == nil {
		t.Error("want error for missing topics")
	}

	// Truncated data.
	l := fillLog(common.Address{}, common.Address{}, 0, 1, 2, 3, 4)
	l.Data = l.Data[:64]
	if _, err := ParseOrderFilled(l); err == nil {
		t.Error("want error for truncated data")
	}
}

func TestIsRangeTooLarge(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{
		"requested block range is too large",
		"eth_getLogs: exceed maximum block range: 1000",
		"query returned more than 10000 results",
	} {
		if !IsRangeTooLarge(errors.New(msg)) {
			t.Errorf("IsRangeTooLarge(%q) = false", msg)
		}
	}

	if IsRangeTooLarge(errors.New("connection refused")) {
		t.Error("transient network error misclassified as range error")
	}
	if IsRangeTooLarge(nil) {
		t.Error("nil error misclassified")
	}
}

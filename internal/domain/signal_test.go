package domain

import (
	"strings"
	"testing"
)

func TestNewMockSignal(t *testing.T) {
	t.Parallel()

	price := 0.42
	sig := NewMockSignal(137, "0xabc", SideBuy, "777", 50, &price)

	if !sig.IsMock() {
		t.Error("mock signal must report IsMock")
	}
	if sig.LogIndex != -1 {
		t.Errorf("log index = %d, want -1", sig.LogIndex)
	}
	if !strings.HasPrefix(sig.TxHash, "mock-") {
		t.Errorf("tx hash = %q, want mock- prefix", sig.TxHash)
	}
	if sig.ChainID != 137 || sig.SourceWallet != "0xabc" || sig.TokenID != "777" {
		t.Errorf("signal = %+v", sig)
	}
	if sig.SourceNotionalUSDC != 50 || sig.SourcePrice == nil || *sig.SourcePrice != 0.42 {
		t.Errorf("notional = %f price = %v", sig.SourceNotionalUSDC, sig.SourcePrice)
	}
	if sig.ObservedAt.IsZero() {
		t.Error("observed_at must be set")
	}

	// Each injection must pass the event-key dedupe on its own.
	other := NewMockSignal(137, "0xabc", SideBuy, "777", 50, &price)
	if other.TxHash == sig.TxHash {
		t.Errorf("tx hashes collide: %s", sig.TxHash)
	}
}

func TestIsMockFalseForChainSignals(t *testing.T) {
	t.Parallel()

	sig := TradeSignal{TxHash: "0xaa", LogIndex: 3}
	if sig.IsMock() {
		t.Error("chain signal must not report IsMock")
	}
}

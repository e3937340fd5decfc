package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Side is the direction of a trade leg from the acting wallet's perspective.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeSignal is one observed source-wallet trade leg, normalized from a
// chain event log. Signals are immutable after insert; the unique key
// (chain_id, source_wallet, tx_hash, log_index) makes re-ingestion a no-op.
// A single tx that touches both a watched maker and a watched taker produces
// two signals with distinct source wallets.
type TradeSignal struct {
	ID int64

	ChainID      int64
	TxHash       string
	LogIndex     int64 // -1 for operator-injected mock signals
	BlockNumber  uint64
	SourceWallet string

	Side       Side
	TokenID    string
	Outcome    string
	MarketSlug string

	SourceNotionalUSDC float64
	SourcePrice        *float64 // nil when the share leg was zero

	ObservedAt time.Time
}

// IsMock reports whether the signal was injected for paper-mode testing
// rather than observed on chain.
func (s TradeSignal) IsMock() bool {
	return s.LogIndex < 0
}

// NewMockSignal builds a synthetic signal for paper-mode testing. The tx hash
// is unique per call and the log index is -1, so the signal passes the dedupe
// key without ever colliding with a chain event.
func NewMockSignal(chainID int64, sourceWallet string, side Side, tokenID string, notionalUSDC float64, price *float64) TradeSignal {
	return TradeSignal{
		ChainID:            chainID,
		TxHash:             "mock-" + randomHex(16),
		LogIndex:           -1,
		SourceWallet:       sourceWallet,
		Side:               side,
		TokenID:            tokenID,
		SourceNotionalUSDC: notionalUSDC,
		SourcePrice:        price,
		ObservedAt:         time.Now().UTC(),
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

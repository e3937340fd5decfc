package domain

import (
	"context"
	"time"
)

// ListOpts carries common pagination parameters for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Candidate is one unmirrored (signal, pair) combination produced by the
// pairing query: a signal from the pair's source wallet, created at or after
// the pair, with no mirror order yet. The follower wallet rides along so the
// policy step does not re-fetch it.
type Candidate struct {
	Signal   TradeSignal
	Pair     Pair
	Follower Wallet

	// SourcePortfolioUSDC is the source wallet's portfolio baseline, nil
	// when the operator has not set one. Drives proportional sizing.
	SourcePortfolioUSDC *float64
}

// WalletStore persists source and follower wallets.
type WalletStore interface {
	Create(ctx context.Context, w *Wallet) error
	GetByID(ctx context.Context, id int64) (Wallet, error)
	GetByAddress(ctx context.Context, role WalletRole, address string) (Wallet, error)
	ListActive(ctx context.Context, role WalletRole) ([]Wallet, error)
	SetStatus(ctx context.Context, id int64, status WalletStatus) error
	SetPortfolio(ctx context.Context, id int64, portfolioUSDC float64) error

	// ConsumeBudget decreases a follower's budget by amount, clamping at
	// zero. A negative amount refunds.
	ConsumeBudget(ctx context.Context, followerID int64, amount float64) error
}

// PairStore persists source→follower pairs.
type PairStore interface {
	Create(ctx context.Context, p *Pair) error
	GetByID(ctx context.Context, id int64) (Pair, error)
	ListActive(ctx context.Context) ([]Pair, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// SignalStore is the durable ordered log of trade signals.
type SignalStore interface {
	// Insert appends a signal, ignoring duplicates of
	// (chain_id, source_wallet, tx_hash, log_index). It reports whether a
	// new row was created and fills s.ID on success.
	Insert(ctx context.Context, s *TradeSignal) (bool, error)

	GetByID(ctx context.Context, id int64) (TradeSignal, error)

	// ListCandidates returns unmirrored (signal, pair) combinations in
	// ascending signal order, so per-pair mirror orders are created in
	// signal order.
	ListCandidates(ctx context.Context, limit int) ([]Candidate, error)

	// ListBefore returns signals observed strictly before cutoff, oldest
	// first, for archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]TradeSignal, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MirrorOrderStore owns mirror order rows and their status transitions.
type MirrorOrderStore interface {
	// Create inserts the order, ignoring duplicates of
	// (pair_id, trade_signal_id). Reports whether a row was created.
	Create(ctx context.Context, o *MirrorOrder) (bool, error)

	GetByID(ctx context.Context, id int64) (MirrorOrder, error)
	ListByStatus(ctx context.Context, status OrderStatus, limit int) ([]MirrorOrder, error)

	// ListStaleSent returns sent orders whose last update is at or before
	// cutoff, including refless submit timeouts. The reconciler's input.
	ListStaleSent(ctx context.Context, cutoff time.Time, limit int) ([]MirrorOrder, error)

	// UpdateStatus moves the order along the state machine, rejecting
	// illegal edges with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id int64, status OrderStatus, blockedReason string) error

	// SetExecutorRef records the venue's order id. The ref is set at most
	// once per sent cycle; Requeue clears it.
	SetExecutorRef(ctx context.Context, id int64, ref string) error

	// Requeue returns a sent order to queued with the given reason and
	// clears the executor ref. Used by the one-shot timeout reprice.
	Requeue(ctx context.Context, id int64, reason string) error

	// HasFilledBuy reports whether the pair holds inventory for the token,
	// i.e. a filled buy order exists for (pair, token).
	HasFilledBuy(ctx context.Context, pairID int64, tokenID string) (bool, error)
}

// ExecutionStore persists per-attempt fill/failure records.
type ExecutionStore interface {
	Insert(ctx context.Context, e *Execution) error
	ListByOrder(ctx context.Context, mirrorOrderID int64) ([]Execution, error)

	// HasRecentBalanceFailure reports whether the pair saw a
	// balance/allowance-class failure since the given time.
	HasRecentBalanceFailure(ctx context.Context, pairID int64, since time.Time) (bool, error)

	// ListFillsSince returns filled executions for risk-state hydration.
	ListFillsSince(ctx context.Context, since time.Time) ([]Execution, error)

	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Execution, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RuntimeStore is a small key/value table for watcher state and heartbeats.
type RuntimeStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// AlertStore is the append-only alert ledger.
type AlertStore interface {
	Insert(ctx context.Context, a *Alert) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Alert, error)
}

// VaultStore persists encrypted signing material by name.
type VaultStore interface {
	Put(ctx context.Context, name string, ciphertext []byte) error
	Get(ctx context.Context, name string) (VaultKey, error)
	List(ctx context.Context) ([]VaultKey, error)
}

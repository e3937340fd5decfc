package domain

import "time"

// PairMode controls whether mirror orders are actually routed to the venue.
type PairMode string

const (
	PairModeLive    PairMode = "live"
	PairModePaper   PairMode = "paper"
	PairModeObserve PairMode = "observe"
)

// SizingMode selects how the follower's notional is derived from the source's.
type SizingMode string

const (
	SizingAbsolute     SizingMode = "absolute"
	SizingProportional SizingMode = "proportional"
)

// Pair binds one watched source wallet to one funded follower wallet together
// with the policy knobs applied when mirroring. At most one active pair may
// exist per (source, follower); the store enforces it with a partial unique
// index.
type Pair struct {
	ID               int64
	SourceWalletID   int64
	FollowerWalletID int64

	Mode   PairMode
	Active bool
	Sizing SizingMode

	MinOrderUSDC           float64
	MaxOrderUSDC           *float64 // nil means uncapped
	MaxSlippageBps         int
	MaxConsecutiveFailures int

	CreatedAt time.Time
	UpdatedAt time.Time
}

package domain

import "time"

// WalletRole distinguishes watched source wallets from funded followers.
type WalletRole string

const (
	WalletRoleSource   WalletRole = "source"
	WalletRoleFollower WalletRole = "follower"
)

// WalletStatus is the operator-controlled lifecycle flag for a wallet.
type WalletStatus string

const (
	WalletStatusActive   WalletStatus = "active"
	WalletStatusDisabled WalletStatus = "disabled"
)

// Wallet is either a watched source wallet or a follower wallet that mirrors
// it. Source wallets may carry a portfolio baseline used by proportional
// sizing; follower wallets carry a spendable budget and a key ref resolving
// to signing material.
type Wallet struct {
	ID      int64
	Role    WalletRole
	Address string // 0x-prefixed, lowercased 20-byte hex
	Alias   string
	Status  WalletStatus

	// PortfolioUSDC is the source wallet's portfolio baseline. It is only
	// populated by operator updates; proportional sizing stays inert while
	// it is nil or zero.
	PortfolioUSDC *float64

	// Follower-only fields.
	BudgetUSDC float64
	KeyRef     string // e.g. "vault://main"
	FundedAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the wallet participates in pairing.
func (w Wallet) IsActive() bool {
	return w.Status == WalletStatusActive
}

package domain

import (
	"strings"
	"time"
)

// ExecutionStatus is the outcome class of one executor attempt.
type ExecutionStatus string

const (
	ExecutionFilled ExecutionStatus = "filled"
	ExecutionFailed ExecutionStatus = "failed"
)

// Execution is a fill or failure record attached to a mirror order. A mirror
// order accumulates one execution row per executor attempt.
type Execution struct {
	ID            int64
	MirrorOrderID int64

	ExecutedSide         Side
	ExecutedPrice        *float64
	ExecutedNotionalUSDC *float64
	ChainTxHash          string

	// PnLUSDC is the estimated slippage cost of the fill relative to the
	// source's price, negative when the follower got a worse price. Risk
	// state is rebuilt from these at startup.
	PnLUSDC *float64

	Status     ExecutionStatus
	FailReason string

	ExecutedAt time.Time
}

// IsBalanceFailure reports whether the fail reason belongs to the
// balance/allowance class that arms the per-pair cooldown. It matches both
// the stub executor's reason code and the venue's rejection message.
func IsBalanceFailure(reason string) bool {
	if reason == "" {
		return false
	}
	r := strings.ToLower(reason)
	return strings.Contains(r, FailReasonInsufficientBal) ||
		strings.Contains(r, "not enough balance") ||
		strings.Contains(r, "allowance")
}

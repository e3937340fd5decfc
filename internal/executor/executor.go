// Package executor places mirror orders on the venue. Two adapters share one
// interface: a deterministic stub for paper pairs and a live CLOB adapter
// that signs GTC limit orders.
package executor

import (
	"context"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// Request carries one queued mirror order together with the rows the adapter
// needs to price and sign it.
type Request struct {
	Order    domain.MirrorOrder
	Signal   domain.TradeSignal
	Pair     domain.Pair
	Follower domain.Wallet

	// Reprice marks the second attempt after a timeout cancel; BUY pricing
	// then bumps the source price by 0.10 instead of one tick.
	Reprice bool
}

// Result is the outcome of one placement attempt. Status is one of filled,
// sent, failed, or blocked; Reason is set for the latter two.
type Result struct {
	Status      domain.OrderStatus
	Reason      string
	ExecutorRef string

	ExecutedPrice        *float64
	ExecutedNotionalUSDC *float64
	ChainTxHash          string

	// PnLUSDC estimates the fill's cost relative to the source price, nil
	// when no fill happened or no source price exists.
	PnLUSDC *float64
}

// VenueExecutor is the side-effectful boundary the worker drives. Place is
// invoked only for queued orders; Cancel only for sent orders carrying an
// executor ref.
type VenueExecutor interface {
	Name() string
	Place(ctx context.Context, req Request) (Result, error)
	Cancel(ctx context.Context, order domain.MirrorOrder) error
}

func failed(reason string) Result {
	return Result{Status: domain.OrderStatusFailed, Reason: reason}
}

func blocked(reason string) Result {
	return Result{Status: domain.OrderStatusBlocked, Reason: reason}
}

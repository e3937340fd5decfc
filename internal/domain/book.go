package domain

import "github.com/shopspring/decimal"

// BookLevel is one price level of a CLOB order book side.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSnapshot is the slice of a CLOB book the executor prices against.
// HasBid/HasAsk distinguish an empty side from a zero price. TickSize falls
// back to 0.001 when the venue omits it.
type BookSnapshot struct {
	TokenID  string
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	HasBid   bool
	HasAsk   bool
	TickSize decimal.Decimal
	// MinOrderSizeUSDC is the venue's live minimum for this book, 0 when
	// the venue omits it.
	MinOrderSizeUSDC float64
}

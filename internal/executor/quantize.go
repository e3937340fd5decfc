package executor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

var (
	priceFloor  = decimal.NewFromFloat(0.01)
	priceCeil   = decimal.NewFromFloat(0.99)
	repriceBump = decimal.NewFromFloat(0.10)
	quoteFloor  = decimal.NewFromInt(1)
)

// sizePrecisions are the size decimal places tried against the venue, most
// precise first. The outer placement loop advances only on "invalid amounts"
// rejections.
var sizePrecisions = []int32{5, 4, 3}

// alignPrice snaps p to the tick grid with half-up rounding, clamps it into
// the venue's valid (0.01, 0.99) band, and rounds to 4 decimals.
func alignPrice(p, tick decimal.Decimal) decimal.Decimal {
	if tick.IsPositive() {
		// DivRound rounds half away from zero, which is half-up for the
		// positive prices handled here.
		p = p.DivRound(tick, 0).Mul(tick)
	}
	if p.LessThan(priceFloor) {
		p = priceFloor
	}
	if p.GreaterThan(priceCeil) {
		p = priceCeil
	}
	return p.Round(4)
}

// limitPrice derives the GTC limit price for one attempt. The source price
// wins when present; otherwise the book provides the reference. BUY bumps by
// one tick, or by 0.10 on a post-timeout reprice; SELL undercuts by one tick.
func limitPrice(side domain.Side, src *float64, book domain.BookSnapshot, reprice bool) (decimal.Decimal, error) {
	tick := book.TickSize
	bump := tick
	if reprice {
		bump = repriceBump
	}

	var ref decimal.Decimal
	if side == domain.SideBuy {
		switch {
		case src != nil:
			ref = decimal.NewFromFloat(*src).Add(bump)
		case book.HasBid:
			ref = book.BestBid.Add(bump)
		case book.HasAsk:
			ref = book.BestAsk
		default:
			return decimal.Zero, fmt.Errorf("executor: no reference price for buy on token %s", book.TokenID)
		}
	} else {
		switch {
		case src != nil:
			ref = decimal.NewFromFloat(*src).Sub(tick)
		case book.HasAsk:
			ref = book.BestAsk.Sub(tick)
		case book.HasBid:
			ref = book.BestBid
		default:
			return decimal.Zero, fmt.Errorf("executor: no reference price for sell on token %s", book.TokenID)
		}
	}
	return alignPrice(ref, tick), nil
}

// orderAmounts quantizes one attempt's maker/taker amounts at size precision
// d. A marketable BUY rounds the USDC quote half-up to cents, floored at the
// venue's $1 quote minimum, and floors the share size to 10^-d; a SELL floors
// the share size from the notional and quotes the proceeds to 2 decimals.
func orderAmounts(side domain.Side, notionalUSDC float64, price decimal.Decimal, d int32) (quote, size decimal.Decimal) {
	if side == domain.SideBuy {
		// Round is half away from zero, which is half-up for positive quotes.
		quote = decimal.NewFromFloat(notionalUSDC).Round(2)
		if quote.LessThan(quoteFloor) {
			quote = quoteFloor
		}
		size = quote.Div(price).RoundDown(d)
		return quote, size
	}
	size = decimal.NewFromFloat(notionalUSDC).Div(price).RoundDown(d)
	quote = size.Mul(price).RoundDown(2)
	return quote, size
}

// toMicro renders a decimal USDC or share amount as the venue's integer
// base-10^6 representation.
func toMicro(v decimal.Decimal) string {
	return v.Shift(6).Truncate(0).String()
}

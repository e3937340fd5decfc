package domain

import "time"

// PriceTick is one last-trade observation from the market data feed. Ticks
// are advisory: the feed may drop old ones under backpressure.
type PriceTick struct {
	AssetID string
	Price   float64
	Size    float64
	Side    Side
	At      time.Time
}

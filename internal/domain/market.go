package domain

// Market is venue metadata for one prediction market, fetched from the
// metadata API and cached. The policy filter reads category, question, and
// slug; the executor reads the venue's minimum order size when present.
type Market struct {
	ID       string
	Question string
	Slug     string
	Category string

	TokenIDs []string
	Outcomes []string

	Closed           bool
	MinOrderSizeUSDC float64
	Volume           float64
}

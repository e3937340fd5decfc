package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether a flag is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIPriceLevel is a single bid/ask level as the CLOB returns it, prices and
// sizes as decimal strings.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the order book snapshot returned by GET /book and pushed over
// the market WebSocket channel.
type APIBook struct {
	Market       string          `json:"market"`
	AssetID      string          `json:"asset_id"`
	Bids         []APIPriceLevel `json:"bids"`
	Asks         []APIPriceLevel `json:"asks"`
	TickSize     string          `json:"tick_size"`
	MinOrderSize string          `json:"min_order_size"`
	Timestamp    string          `json:"timestamp"`
	Hash         string          `json:"hash"`
}

// defaultTickSize is used when the venue omits or mangles tick_size.
var defaultTickSize = decimal.NewFromFloat(0.001)

// ToSnapshot reduces the raw book to the fields the executor prices against.
// Levels that fail to parse are skipped; a missing tick_size falls back to
// 0.001.
func (b *APIBook) ToSnapshot() domain.BookSnapshot {
	snap := domain.BookSnapshot{
		TokenID:          b.AssetID,
		TickSize:         defaultTickSize,
		MinOrderSizeUSDC: b.MinOrderSizeUSDC(),
	}

	if ts, err := decimal.NewFromString(b.TickSize); err == nil && ts.IsPositive() {
		snap.TickSize = ts
	}

	for _, lvl := range b.Bids {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		if !snap.HasBid || p.GreaterThan(snap.BestBid) {
			snap.BestBid = p
			snap.HasBid = true
		}
	}
	for _, lvl := range b.Asks {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		if !snap.HasAsk || p.LessThan(snap.BestAsk) {
			snap.BestAsk = p
			snap.HasAsk = true
		}
	}

	return snap
}

// MinOrderSizeUSDC parses the venue minimum order size, 0 when absent.
func (b *APIBook) MinOrderSizeUSDC() float64 {
	v, err := strconv.ParseFloat(b.MinOrderSize, 64)
	if err != nil {
		return 0
	}
	return v
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg,omitempty"`
	OrderID            string   `json:"orderID,omitempty"`
	Status             string   `json:"status,omitempty"`
	TransactionsHashes []string `json:"transactionsHashes,omitempty"`
}

// OrderResult is the placement outcome the executor acts on. Filled reports
// whether the venue already settled the order on-chain (a marketable order
// that crossed the book).
type OrderResult struct {
	Success  bool
	OrderID  string
	Status   string
	ErrorMsg string
	TxHashes []string
}

// Filled reports whether the venue returned settlement transaction hashes.
func (r OrderResult) Filled() bool {
	return r.Success && len(r.TxHashes) > 0
}

func (r *APIOrderResult) toOrderResult() OrderResult {
	return OrderResult{
		Success:  r.Success,
		OrderID:  r.OrderID,
		Status:   r.Status,
		ErrorMsg: r.ErrorMsg,
		TxHashes: r.TransactionsHashes,
	}
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
// Several fields arrive as JSON-encoded strings inside the JSON document.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Slug          string   `json:"slug"`
	Category      string   `json:"category"`
	Closed        flexBool `json:"closed"`
	Active        flexBool `json:"active"`
	Outcomes      string   `json:"outcomes"`      // JSON-encoded: "[\"Yes\",\"No\"]"
	ClobTokenIDs  string   `json:"clobTokenIds"`  // JSON-encoded: "[\"123\",\"456\"]"
	Volume        string   `json:"volume"`
	OrderMinSize  float64  `json:"orderMinSize"`
	NegRisk       bool     `json:"negRisk"`
	EndDateISO    string   `json:"endDateIso"`
	GameStartTime string   `json:"gameStartTime"`
}

// ToDomainMarket converts a Gamma APIMarket to the domain representation the
// policy filter and market cache work with.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:               m.ID,
		Question:         m.Question,
		Slug:             m.Slug,
		Category:         m.Category,
		Closed:           bool(m.Closed),
		MinOrderSizeUSDC: m.OrderMinSize,
		TokenIDs:         parseStringArray(m.ClobTokenIDs),
		Outcomes:         parseStringArray(m.Outcomes),
	}
	if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
		dm.Volume = v
	}
	return dm
}

// parseStringArray decodes Gamma's JSON-encoded string arrays, returning nil
// on any malformed input.
func parseStringArray(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(encoded), &out); err != nil {
		return nil
	}
	return out
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to the market WebSocket to subscribe.
type WSCommand struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// LastTradeMessage is a last-trade print delivered on the market channel.
type LastTradeMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// ToPriceTick converts a last-trade message to a feed tick.
func (m *LastTradeMessage) ToPriceTick() domain.PriceTick {
	tick := domain.PriceTick{AssetID: m.AssetID}
	tick.Price, _ = strconv.ParseFloat(m.Price, 64)
	tick.Size, _ = strconv.ParseFloat(m.Size, 64)

	switch strings.ToUpper(m.Side) {
	case "SELL":
		tick.Side = domain.SideSell
	default:
		tick.Side = domain.SideBuy
	}

	// Timestamps arrive as unix milliseconds; fall back to receipt time.
	if ms, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		tick.At = time.UnixMilli(ms)
	} else {
		tick.At = time.Now()
	}
	return tick
}

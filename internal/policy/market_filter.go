package policy

import (
	"strings"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// MarketFilter classifies a market into a restricted-category tag. An empty
// tag means the market may be mirrored. Swappable so coverage can be tuned
// without touching the engine.
type MarketFilter func(m domain.Market) string

// Restricted-category tags produced by DefaultMarketFilter.
const (
	TagSportsEvent     = "sports_event"
	TagCryptoShortTerm = "crypto_short_term"
)

// Keyword tables for DefaultMarketFilter, matched case-insensitively against
// category, question, and slug. English and Korean coverage.
var (
	sportsKeywords = []string{
		"sports", "nba", "nfl", "mlb", "nhl", "ufc", "epl",
		"premier league", "champions league", "la liga", "serie a",
		"world cup", "super bowl", "grand slam", "olympic",
		"축구", "야구", "농구", "배구", "경기 승리",
	}

	// Short tickers like "eth" or "sol" are left out: they collide with
	// ordinary words ("whether", "solution") in question text.
	cryptoAssetKeywords = []string{
		"bitcoin", "btc", "ethereum", "solana", "xrp",
		"dogecoin", "doge", "crypto",
		"비트코인", "이더리움", "솔라나", "코인",
	}

	shortTermKeywords = []string{
		"today", "tomorrow", "this hour", "hourly", "15 min",
		"am et", "pm et", "by noon", "midnight",
		"오늘", "내일", "시간 내", "단기",
	}
)

// DefaultMarketFilter blocks sports events outright and crypto markets that
// look like short-term price bets (asset keyword plus a time keyword).
func DefaultMarketFilter(m domain.Market) string {
	slug := strings.ReplaceAll(m.Slug, "-", " ")
	text := strings.ToLower(m.Category + " " + m.Question + " " + slug)

	if containsAny(text, sportsKeywords) {
		return TagSportsEvent
	}
	if containsAny(text, cryptoAssetKeywords) && containsAny(text, shortTermKeywords) {
		return TagCryptoShortTerm
	}
	return ""
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

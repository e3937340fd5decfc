package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// GammaClient is an HTTP client for the Polymarket Gamma metadata API.
// Gamma is unauthenticated and read-only.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma client for the given base URL.
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// MarketByToken fetches the market that lists the given CLOB token.
func (g *GammaClient) MarketByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	q := url.Values{}
	q.Set("clob_token_ids", tokenID)

	var markets []APIMarket
	if err := g.doGet(ctx, "/markets", q, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market by token %s: %w", tokenID, err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market by token %s: %w", tokenID, domain.ErrNotFound)
	}
	return markets[0].ToDomainMarket(), nil
}

// MarketBySlug fetches a market by its Gamma slug.
func (g *GammaClient) MarketBySlug(ctx context.Context, slug string) (domain.Market, error) {
	q := url.Values{}
	q.Set("slug", slug)

	var markets []APIMarket
	if err := g.doGet(ctx, "/markets", q, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market by slug %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market by slug %s: %w", slug, domain.ErrNotFound)
	}
	return markets[0].ToDomainMarket(), nil
}

// doGet performs a GET request and decodes the JSON response into out.
func (g *GammaClient) doGet(ctx context.Context, path string, query url.Values, out any) error {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

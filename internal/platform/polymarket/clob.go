// Package polymarket provides HTTP and WebSocket clients for the Polymarket
// CLOB and Gamma APIs.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/crypto"
	"github.com/mirrorbot/mirrorbot/internal/domain"
)

// ClobClient is an HTTP client for the Polymarket CLOB REST API. Read
// endpoints work unauthenticated; placing and canceling orders require a
// signer plus HMAC credentials from DeriveAPIKey.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	auth       *crypto.HMACAuth
}

// NewClobClient creates a CLOB client. signer and auth may be nil for
// read-only use.
func NewClobClient(baseURL string, signer *crypto.Signer, auth *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		auth:       auth,
	}
}

// SetAuth installs HMAC credentials obtained via DeriveAPIKey.
func (c *ClobClient) SetAuth(auth *crypto.HMACAuth) {
	c.auth = auth
}

// DeriveAPIKey derives (or creates) the L2 API credentials for the signer's
// address by signing an EIP-712 ClobAuth message.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) (*crypto.HMACAuth, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: no signer configured")
	}

	timestamp := time.Now().Unix()
	const nonce = int64(0)

	address := c.signer.Address().Hex()
	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var creds struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return nil, fmt.Errorf("polymarket/clob: derive api key: decode: %w", err)
	}

	return &crypto.HMACAuth{
		Key:        creds.APIKey,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	}, nil
}

// GetBook fetches the order book snapshot for a token.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error) {
	u := c.baseURL + "/book?token_id=" + url.QueryEscape(tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book: %w", err)
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book APIBook
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("polymarket/clob: get book: decode: %w", err)
	}
	if book.AssetID == "" {
		book.AssetID = tokenID
	}

	return book.ToSnapshot(), nil
}

// PostOrder submits a signed GTC limit order. A venue rejection comes back
// as an unsuccessful OrderResult with nil error; errors are transport or
// auth failures only.
func (c *ClobClient) PostOrder(ctx context.Context, order crypto.OrderPayload, signature string) (OrderResult, error) {
	if c.auth == nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w: no api credentials", domain.ErrUnauthorized)
	}

	payload := map[string]any{
		"order": map[string]any{
			"salt":          order.Salt,
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenId":       order.TokenID,
			"makerAmount":   order.MakerAmount,
			"takerAmount":   order.TakerAmount,
			"expiration":    order.Expiration,
			"nonce":         order.Nonce,
			"feeRateBps":    order.FeeRateBps,
			"side":          sideString(order.Side),
			"signatureType": order.SignatureType,
			"signature":     signature,
		},
		"owner":     c.auth.Key,
		"orderType": "GTC",
	}

	var result APIOrderResult
	if err := c.doAuthenticated(ctx, http.MethodPost, "/order", payload, &result); err != nil {
		return OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	return result.toOrderResult(), nil
}

// CancelOrder cancels a resting order by its venue order ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	if c.auth == nil {
		return fmt.Errorf("polymarket/clob: cancel order: %w: no api credentials", domain.ErrUnauthorized)
	}

	payload := map[string]string{"orderID": orderID}

	var result struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := c.doAuthenticated(ctx, http.MethodDelete, "/order", payload, &result); err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	if reason, ok := result.NotCanceled[orderID]; ok {
		return fmt.Errorf("polymarket/clob: cancel order %s: venue refused: %s", orderID, reason)
	}
	return nil
}

// sideString maps the EIP-712 numeric side to the REST representation.
func sideString(side int) string {
	if side == 1 {
		return "SELL"
	}
	return "BUY"
}

// doAuthenticated performs an L2-authenticated request and decodes the JSON
// response into out.
func (c *ClobClient) doAuthenticated(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	address := ""
	if c.signer != nil {
		address = c.signer.Address().Hex()
	}
	for k, v := range c.auth.L2Headers(address, method, path, string(body)) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHTTPStatus maps HTTP error statuses onto domain sentinels so callers
// can match with errors.Is. The response body is included for diagnostics.
func checkHTTPStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bytes.TrimSpace(body))
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bytes.TrimSpace(body))
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bytes.TrimSpace(body))
	default:
		return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
}

package executor

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/crypto"
	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/platform/polymarket"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Venue is the slice of the CLOB client the live executor drives.
type Venue interface {
	GetBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error)
	PostOrder(ctx context.Context, order crypto.OrderPayload, signature string) (polymarket.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// SignerResolver turns a wallet's key ref into signing material. Implemented
// by the vault.
type SignerResolver interface {
	Signer(ctx context.Context, keyRef string) (*ecdsa.PrivateKey, error)
}

// Live places signed GTC limit orders on the CLOB. Signers are resolved from
// the vault once per key ref and cached for the process lifetime.
type Live struct {
	cfg     config.ExecutorConfig
	chainID int64
	venue   Venue
	keys    SignerResolver
	log     *slog.Logger

	mu      sync.Mutex
	signers map[string]*crypto.Signer
}

// NewLive creates the live CLOB executor.
func NewLive(cfg config.ExecutorConfig, chainID int64, venue Venue, keys SignerResolver, log *slog.Logger) *Live {
	return &Live{
		cfg:     cfg,
		chainID: chainID,
		venue:   venue,
		keys:    keys,
		log:     log.With("component", "executor_live"),
		signers: make(map[string]*crypto.Signer),
	}
}

// Name identifies the adapter in logs and alerts.
func (l *Live) Name() string { return "live" }

// Place prices, quantizes, signs, and submits one GTC limit order. Stricter
// size precision is retried only on "invalid amounts" rejections; every other
// rejection is terminal for the attempt. Transport errors are returned to the
// caller, which leaves the order for the reconciler.
func (l *Live) Place(ctx context.Context, req Request) (Result, error) {
	signer, err := l.signer(ctx, req.Follower.KeyRef)
	if err != nil {
		return Result{}, err
	}

	book, err := l.venue.GetBook(ctx, req.Signal.TokenID)
	if err != nil {
		l.log.Warn("book fetch failed, using default tick",
			"token_id", req.Signal.TokenID, "error", err.Error())
		book = domain.BookSnapshot{
			TokenID:  req.Signal.TokenID,
			TickSize: decimal.NewFromFloat(0.001),
		}
	}

	// The book carries the live minimum for this market; a quote under it
	// would only bounce off the venue, so block before posting.
	if book.MinOrderSizeUSDC > 0 && req.Order.AdjustedNotionalUSDC < book.MinOrderSizeUSDC {
		return blocked(domain.BlockReasonMarketMinSize), nil
	}

	price, err := limitPrice(req.Signal.Side, req.Signal.SourcePrice, book, req.Reprice)
	if err != nil {
		return failed("no_reference_price"), nil
	}

	for _, d := range sizePrecisions {
		quote, size := orderAmounts(req.Signal.Side, req.Order.AdjustedNotionalUSDC, price, d)
		if !size.IsPositive() {
			return failed(domain.FailReasonInvalidAmounts), nil
		}

		payload := l.payload(signer, req, price, quote, size)
		signature, err := signer.SignOrder(payload)
		if err != nil {
			return Result{}, fmt.Errorf("executor: sign order %d: %w", req.Order.ID, err)
		}

		res, err := l.venue.PostOrder(ctx, payload, signature)
		if err != nil {
			return Result{}, fmt.Errorf("executor: post order %d: %w", req.Order.ID, err)
		}

		if res.Success {
			return l.placed(req, res, price, quote, size), nil
		}

		msg := strings.ToLower(res.ErrorMsg)
		switch {
		case strings.Contains(msg, "invalid amount"):
			l.log.Debug("venue rejected amounts, tightening size precision",
				"order_id", req.Order.ID, "precision", d)
			continue
		case isMinSizeReject(msg):
			return blocked(domain.BlockReasonMarketMinSize), nil
		default:
			return failed(domain.FailReasonRejectedPrefix + res.ErrorMsg), nil
		}
	}
	return failed(domain.FailReasonInvalidAmounts), nil
}

// Cancel asks the venue to cancel an open order.
func (l *Live) Cancel(ctx context.Context, order domain.MirrorOrder) error {
	if order.ExecutorRef == "" {
		return fmt.Errorf("executor: cancel order %d: %w: no executor ref",
			order.ID, domain.ErrInvalidInput)
	}
	if err := l.venue.CancelOrder(ctx, order.ExecutorRef); err != nil {
		return fmt.Errorf("executor: cancel order %d: %w", order.ID, err)
	}
	return nil
}

// placed converts a successful venue response: a reported tx hash means the
// order crossed immediately, otherwise it rests open as sent.
func (l *Live) placed(req Request, res polymarket.OrderResult, price, quote, size decimal.Decimal) Result {
	out := Result{ExecutorRef: res.OrderID}

	if !res.Filled() {
		out.Status = domain.OrderStatusSent
		l.log.Info("order resting", "order_id", req.Order.ID, "executor_ref", res.OrderID)
		return out
	}

	executedPrice := price.InexactFloat64()
	executedNotional := quote.InexactFloat64()
	out.Status = domain.OrderStatusFilled
	out.ExecutedPrice = &executedPrice
	out.ExecutedNotionalUSDC = &executedNotional
	out.ChainTxHash = res.TxHashes[0]

	if req.Signal.SourcePrice != nil {
		shares := size.InexactFloat64()
		pnl := (*req.Signal.SourcePrice - executedPrice) * shares
		if req.Signal.Side == domain.SideSell {
			pnl = -pnl
		}
		out.PnLUSDC = &pnl
	}

	l.log.Info("order filled",
		"order_id", req.Order.ID,
		"executor_ref", res.OrderID,
		"price", executedPrice,
		"notional_usdc", executedNotional,
	)
	return out
}

// payload assembles the EIP-712 order struct for one attempt. The funder
// address, when configured, is the maker proxy holding the balances.
func (l *Live) payload(signer *crypto.Signer, req Request, price, quote, size decimal.Decimal) crypto.OrderPayload {
	maker := l.cfg.FunderAddress
	if maker == "" {
		maker = signer.Address().Hex()
	}

	side := 0
	makerAmount, takerAmount := quote, size
	if req.Signal.Side == domain.SideSell {
		side = 1
		makerAmount, takerAmount = size, quote
	}

	return crypto.OrderPayload{
		Salt:          strconv.FormatInt(time.Now().UnixNano(), 10),
		Maker:         maker,
		Signer:        signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       req.Signal.TokenID,
		MakerAmount:   toMicro(makerAmount),
		TakerAmount:   toMicro(takerAmount),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          side,
		SignatureType: l.cfg.SignatureType,
	}
}

// signer resolves and caches the signer for one key ref.
func (l *Live) signer(ctx context.Context, keyRef string) (*crypto.Signer, error) {
	l.mu.Lock()
	cached, ok := l.signers[keyRef]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}

	pk, err := l.keys.Signer(ctx, keyRef)
	if err != nil {
		return nil, fmt.Errorf("executor: resolve signer %s: %w", keyRef, err)
	}
	s, err := crypto.NewSigner(pk, l.chainID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.signers[keyRef] = s
	l.mu.Unlock()
	return s, nil
}

// isMinSizeReject matches the venue's minimum-order-size rejection wording.
func isMinSizeReject(lowerMsg string) bool {
	return strings.Contains(lowerMsg, "minimum size") ||
		strings.Contains(lowerMsg, "min size") ||
		strings.Contains(lowerMsg, "minimum order")
}

var _ VenueExecutor = (*Live)(nil)

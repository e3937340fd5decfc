package executor

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/mirrorbot/mirrorbot/internal/config"
	"github.com/mirrorbot/mirrorbot/internal/crypto"
	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/platform/polymarket"
)

// Well-known development key, address 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266.
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeVenue struct {
	book    domain.BookSnapshot
	bookErr error

	results  []polymarket.OrderResult
	postErr  error
	payloads []crypto.OrderPayload

	canceled  []string
	cancelErr error
}

func (f *fakeVenue) GetBook(context.Context, string) (domain.BookSnapshot, error) {
	return f.book, f.bookErr
}

func (f *fakeVenue) PostOrder(_ context.Context, order crypto.OrderPayload, _ string) (polymarket.OrderResult, error) {
	f.payloads = append(f.payloads, order)
	if f.postErr != nil {
		return polymarket.OrderResult{}, f.postErr
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res, nil
}

func (f *fakeVenue) CancelOrder(_ context.Context, orderID string) error {
	f.canceled = append(f.canceled, orderID)
	return f.cancelErr
}

type fakeKeys struct{ pk *ecdsa.PrivateKey }

func (f *fakeKeys) Signer(context.Context, string) (*ecdsa.PrivateKey, error) {
	return f.pk, nil
}

func newTestLive(t *testing.T, venue *fakeVenue) *Live {
	t.Helper()
	pk, err := ethcrypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("test key: %v", err)
	}
	cfg := config.Defaults().Executor
	return NewLive(cfg, 137, venue, &fakeKeys{pk: pk}, discardLogger())
}

func liveRequest() Request {
	return Request{
		Order: domain.MirrorOrder{
			ID:                   1,
			Status:               domain.OrderStatusQueued,
			AdjustedNotionalUSDC: 25,
		},
		Signal: domain.TradeSignal{
			Side:        domain.SideBuy,
			TokenID:     "777",
			SourcePrice: fptr(0.50),
		},
		Pair:     domain.Pair{ID: 1},
		Follower: domain.Wallet{ID: 2, KeyRef: "vault://main", BudgetUSDC: 200},
	}
}

func liveBook() domain.BookSnapshot {
	return domain.BookSnapshot{
		TokenID:  "777",
		BestBid:  dec("0.48"),
		BestAsk:  dec("0.53"),
		HasBid:   true,
		HasAsk:   true,
		TickSize: dec("0.01"),
	}
}

func TestLivePlaceFilled(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book: liveBook(),
		results: []polymarket.OrderResult{
			{Success: true, OrderID: "ord-1", TxHashes: []string{"0xabc"}},
		},
	}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s (%s)", res.Status, res.Reason)
	}
	if res.ExecutorRef != "ord-1" || res.ChainTxHash != "0xabc" {
		t.Errorf("ref = %q tx = %q", res.ExecutorRef, res.ChainTxHash)
	}
	// Limit price: source 0.50 + one tick.
	if res.ExecutedPrice == nil || *res.ExecutedPrice != 0.51 {
		t.Errorf("executed price = %v", res.ExecutedPrice)
	}
	// Paying one tick over the source price on floor(25/0.51, 1e-5) shares.
	if res.PnLUSDC == nil || math.Abs(*res.PnLUSDC-(-0.4901960)) > 1e-4 {
		t.Errorf("pnl = %v", res.PnLUSDC)
	}

	p := venue.payloads[0]
	if p.Side != 0 || p.MakerAmount != "25000000" || p.TakerAmount != "49019600" {
		t.Errorf("payload amounts = side %d maker %s taker %s", p.Side, p.MakerAmount, p.TakerAmount)
	}
	if p.Signer != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("signer = %s", p.Signer)
	}
}

func TestLivePlaceRestingOrder(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book:    liveBook(),
		results: []polymarket.OrderResult{{Success: true, OrderID: "ord-2"}},
	}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusSent || res.ExecutorRef != "ord-2" {
		t.Errorf("result = %+v, want sent with ref", res)
	}
	if res.ExecutedPrice != nil {
		t.Error("resting order must not report an executed price")
	}
}

func TestLivePlaceRetriesInvalidAmounts(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book: liveBook(),
		results: []polymarket.OrderResult{
			{Success: false, ErrorMsg: "invalid amounts"},
			{Success: false, ErrorMsg: "invalid amounts"},
			{Success: true, OrderID: "ord-3", TxHashes: []string{"0xdef"}},
		},
	}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFilled {
		t.Fatalf("status = %s (%s)", res.Status, res.Reason)
	}
	if len(venue.payloads) != 3 {
		t.Fatalf("attempts = %d, want 3", len(venue.payloads))
	}
	// Size precision tightens 5 -> 4 -> 3 across retries.
	sizes := []string{
		venue.payloads[0].TakerAmount,
		venue.payloads[1].TakerAmount,
		venue.payloads[2].TakerAmount,
	}
	if sizes[0] != "49019600" || sizes[1] != "49019600" || sizes[2] != "49019000" {
		t.Errorf("taker amounts across retries = %v", sizes)
	}
}

func TestLivePlaceInvalidAmountsExhausted(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book:    liveBook(),
		results: []polymarket.OrderResult{{Success: false, ErrorMsg: "invalid amounts"}},
	}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFailed || res.Reason != domain.FailReasonInvalidAmounts {
		t.Errorf("result = %s %q", res.Status, res.Reason)
	}
	if len(venue.payloads) != 3 {
		t.Errorf("attempts = %d, want all precisions tried", len(venue.payloads))
	}
}

func TestLivePlaceMinSizeBlocks(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book:    liveBook(),
		results: []polymarket.OrderResult{{Success: false, ErrorMsg: "order below minimum size"}},
	}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusBlocked || res.Reason != domain.BlockReasonMarketMinSize {
		t.Errorf("result = %s %q", res.Status, res.Reason)
	}
	if len(venue.payloads) != 1 {
		t.Errorf("min-size rejections must not be retried, attempts = %d", len(venue.payloads))
	}
}

func TestLivePlaceBookMinSizeBlocksBeforePosting(t *testing.T) {
	t.Parallel()

	book := liveBook()
	book.MinOrderSizeUSDC = 100

	venue := &fakeVenue{book: book}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusBlocked || res.Reason != domain.BlockReasonMarketMinSize {
		t.Errorf("result = %s %q", res.Status, res.Reason)
	}
	if len(venue.payloads) != 0 {
		t.Errorf("sub-minimum order was posted %d times", len(venue.payloads))
	}
}

func TestLivePlaceOtherRejectionFails(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book:    liveBook(),
		results: []polymarket.OrderResult{{Success: false, ErrorMsg: "not enough balance"}},
	}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.Status != domain.OrderStatusFailed {
		t.Fatalf("status = %s", res.Status)
	}
	if !strings.HasPrefix(res.Reason, domain.FailReasonRejectedPrefix) {
		t.Errorf("reason = %q", res.Reason)
	}
	if !domain.IsBalanceFailure(res.Reason) {
		t.Error("balance rejection must arm the pair cooldown")
	}
}

func TestLivePlaceTransportErrorPropagates(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{book: liveBook(), postErr: errors.New("dial timeout")}
	l := newTestLive(t, venue)

	if _, err := l.Place(context.Background(), liveRequest()); err == nil {
		t.Fatal("transport errors must propagate so the order stays sent")
	}
}

func TestLivePlaceBookFailureFallsBackToDefaultTick(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		bookErr: errors.New("http 500"),
		results: []polymarket.OrderResult{
			{Success: true, OrderID: "ord-4", TxHashes: []string{"0x1"}},
		},
	}
	l := newTestLive(t, venue)

	res, err := l.Place(context.Background(), liveRequest())
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	// Source 0.50 + default 0.001 tick.
	if res.ExecutedPrice == nil || *res.ExecutedPrice != 0.501 {
		t.Errorf("executed price = %v", res.ExecutedPrice)
	}
}

func TestLivePlaceRepriceUsesTenCentBump(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book: liveBook(),
		results: []polymarket.OrderResult{
			{Success: true, OrderID: "ord-5", TxHashes: []string{"0x2"}},
		},
	}
	l := newTestLive(t, venue)

	req := liveRequest()
	req.Reprice = true

	res, err := l.Place(context.Background(), req)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.ExecutedPrice == nil || *res.ExecutedPrice != 0.60 {
		t.Errorf("executed price = %v, want source + 0.10", res.ExecutedPrice)
	}
}

func TestLiveSellPayloadSwapsAmounts(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{
		book:    liveBook(),
		results: []polymarket.OrderResult{{Success: true, OrderID: "ord-6"}},
	}
	l := newTestLive(t, venue)

	req := liveRequest()
	req.Signal.Side = domain.SideSell
	req.Signal.SourcePrice = fptr(0.51)

	if _, err := l.Place(context.Background(), req); err != nil {
		t.Fatalf("Place: %v", err)
	}

	p := venue.payloads[0]
	if p.Side != 1 {
		t.Fatalf("side = %d", p.Side)
	}
	// Sell at 0.51 - tick = 0.50: maker gives 50 shares, takes 25 USDC.
	if p.MakerAmount != "50000000" || p.TakerAmount != "25000000" {
		t.Errorf("maker %s taker %s", p.MakerAmount, p.TakerAmount)
	}
}

func TestLiveCancel(t *testing.T) {
	t.Parallel()

	venue := &fakeVenue{book: liveBook()}
	l := newTestLive(t, venue)
	ctx := context.Background()

	if err := l.Cancel(ctx, domain.MirrorOrder{ID: 1}); err == nil {
		t.Error("cancel without executor ref must fail")
	}
	if err := l.Cancel(ctx, domain.MirrorOrder{ID: 1, ExecutorRef: "ord-1"}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(venue.canceled) != 1 || venue.canceled[0] != "ord-1" {
		t.Errorf("canceled = %v", venue.canceled)
	}

	venue.cancelErr = errors.New("not canceled")
	if err := l.Cancel(ctx, domain.MirrorOrder{ID: 1, ExecutorRef: "ord-1"}); err == nil {
		t.Error("venue cancel failure must propagate")
	}
}

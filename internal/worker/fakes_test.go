package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mirrorbot/mirrorbot/internal/domain"
	"github.com/mirrorbot/mirrorbot/internal/executor"
)

// In-memory stores backing the worker tests. They enforce the same
// uniqueness and transition rules as the real schema.

type memWallets struct {
	mu   sync.Mutex
	seq  int64
	byID map[int64]*domain.Wallet
}

func newMemWallets() *memWallets {
	return &memWallets{byID: make(map[int64]*domain.Wallet)}
}

func (m *memWallets) Create(_ context.Context, w *domain.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	w.ID = m.seq
	cp := *w
	m.byID[w.ID] = &cp
	return nil
}

func (m *memWallets) GetByID(_ context.Context, id int64) (domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[id]
	if !ok {
		return domain.Wallet{}, domain.ErrNotFound
	}
	return *w, nil
}

func (m *memWallets) GetByAddress(_ context.Context, role domain.WalletRole, address string) (domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.byID {
		if w.Role == role && w.Address == address {
			return *w, nil
		}
	}
	return domain.Wallet{}, domain.ErrNotFound
}

func (m *memWallets) ListActive(_ context.Context, role domain.WalletRole) ([]domain.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Wallet
	for _, w := range m.byID {
		if w.Role == role && w.Status == domain.WalletStatusActive {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memWallets) SetStatus(_ context.Context, id int64, status domain.WalletStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].Status = status
	return nil
}

func (m *memWallets) SetPortfolio(_ context.Context, id int64, portfolioUSDC float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].PortfolioUSDC = &portfolioUSDC
	return nil
}

func (m *memWallets) ConsumeBudget(_ context.Context, followerID int64, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byID[followerID]
	if !ok {
		return domain.ErrNotFound
	}
	w.BudgetUSDC -= amount
	if w.BudgetUSDC < 0 {
		w.BudgetUSDC = 0
	}
	return nil
}

type memPairs struct {
	mu   sync.Mutex
	seq  int64
	byID map[int64]*domain.Pair
}

func newMemPairs() *memPairs {
	return &memPairs{byID: make(map[int64]*domain.Pair)}
}

func (m *memPairs) Create(_ context.Context, p *domain.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = m.seq
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPairs) GetByID(_ context.Context, id int64) (domain.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.Pair{}, domain.ErrNotFound
	}
	return *p, nil
}

func (m *memPairs) ListActive(_ context.Context) ([]domain.Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Pair
	for _, p := range m.byID {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPairs) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[id].Active = active
	return nil
}

// memSignals joins its signal log against the pair and wallet fakes to
// produce candidates the same way the SQL does.
type memSignals struct {
	mu   sync.Mutex
	seq  int64
	byID map[int64]domain.TradeSignal

	pairs   *memPairs
	wallets *memWallets
	orders  *memOrders
}

func newMemSignals() *memSignals {
	return &memSignals{byID: make(map[int64]domain.TradeSignal)}
}

func (m *memSignals) Insert(_ context.Context, s *domain.TradeSignal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.ChainID == s.ChainID && existing.SourceWallet == s.SourceWallet &&
			existing.TxHash == s.TxHash && existing.LogIndex == s.LogIndex {
			return false, nil
		}
	}
	m.seq++
	s.ID = m.seq
	m.byID[s.ID] = *s
	return true, nil
}

func (m *memSignals) GetByID(_ context.Context, id int64) (domain.TradeSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return domain.TradeSignal{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *memSignals) ListCandidates(ctx context.Context, limit int) ([]domain.Candidate, error) {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	signals := make([]domain.TradeSignal, 0, len(ids))
	for _, id := range ids {
		signals = append(signals, m.byID[id])
	}
	m.mu.Unlock()

	pairs, _ := m.pairs.ListActive(ctx)
	var out []domain.Candidate
	for _, sig := range signals {
		for _, p := range pairs {
			if p.Mode == domain.PairModeObserve {
				continue
			}
			src, err := m.wallets.GetByID(ctx, p.SourceWalletID)
			if err != nil || src.Address != sig.SourceWallet || !src.IsActive() {
				continue
			}
			if m.orders.exists(p.ID, sig.ID) {
				continue
			}
			follower, err := m.wallets.GetByID(ctx, p.FollowerWalletID)
			if err != nil || !follower.IsActive() {
				continue
			}
			out = append(out, domain.Candidate{
				Signal:              sig,
				Pair:                p,
				Follower:            follower,
				SourcePortfolioUSDC: src.PortfolioUSDC,
			})
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (m *memSignals) ListBefore(context.Context, time.Time, int) ([]domain.TradeSignal, error) {
	return nil, nil
}

func (m *memSignals) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memOrders struct {
	mu   sync.Mutex
	seq  int64
	byID map[int64]*domain.MirrorOrder
	keys map[string]int64

	signals *memSignals
	now     func() time.Time
}

func newMemOrders(now func() time.Time) *memOrders {
	return &memOrders{
		byID: make(map[int64]*domain.MirrorOrder),
		keys: make(map[string]int64),
		now:  now,
	}
}

func orderKey(pairID, signalID int64) string {
	return fmt.Sprintf("%d:%d", pairID, signalID)
}

func (m *memOrders) exists(pairID, signalID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[orderKey(pairID, signalID)]
	return ok
}

func (m *memOrders) Create(_ context.Context, o *domain.MirrorOrder) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := orderKey(o.PairID, o.TradeSignalID)
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.seq++
	o.ID = m.seq
	o.CreatedAt = m.now()
	o.UpdatedAt = m.now()
	cp := *o
	m.byID[o.ID] = &cp
	m.keys[key] = o.ID
	return true, nil
}

func (m *memOrders) GetByID(_ context.Context, id int64) (domain.MirrorOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.MirrorOrder{}, domain.ErrNotFound
	}
	return *o, nil
}

func (m *memOrders) ListByStatus(_ context.Context, status domain.OrderStatus, limit int) ([]domain.MirrorOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MirrorOrder
	for _, id := range m.sortedIDs() {
		o := m.byID[id]
		if o.Status == status && len(out) < limit {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) ListStaleSent(_ context.Context, cutoff time.Time, limit int) ([]domain.MirrorOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MirrorOrder
	for _, id := range m.sortedIDs() {
		o := m.byID[id]
		if o.Status == domain.OrderStatusSent && !o.UpdatedAt.After(cutoff) && len(out) < limit {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id int64, status domain.OrderStatus, blockedReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !o.Status.CanTransitionTo(status) {
		return fmt.Errorf("order %d: %s -> %s: %w", id, o.Status, status, domain.ErrInvalidTransition)
	}
	o.Status = status
	o.BlockedReason = blockedReason
	o.UpdatedAt = m.now()
	return nil
}

func (m *memOrders) SetExecutorRef(_ context.Context, id int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.ExecutorRef = ref
	return nil
}

func (m *memOrders) Requeue(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != domain.OrderStatusSent {
		return fmt.Errorf("order %d: requeue from %s: %w", id, o.Status, domain.ErrInvalidTransition)
	}
	o.Status = domain.OrderStatusQueued
	o.BlockedReason = reason
	o.ExecutorRef = ""
	o.UpdatedAt = m.now()
	return nil
}

func (m *memOrders) HasFilledBuy(ctx context.Context, pairID int64, tokenID string) (bool, error) {
	m.mu.Lock()
	orders := make([]domain.MirrorOrder, 0, len(m.byID))
	for _, o := range m.byID {
		orders = append(orders, *o)
	}
	m.mu.Unlock()

	for _, o := range orders {
		if o.PairID != pairID || o.Status != domain.OrderStatusFilled {
			continue
		}
		sig, err := m.signals.GetByID(ctx, o.TradeSignalID)
		if err != nil {
			continue
		}
		if sig.Side == domain.SideBuy && sig.TokenID == tokenID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memOrders) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.byID))
	for id := range m.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type memExecs struct {
	mu   sync.Mutex
	seq  int64
	rows []domain.Execution

	orders *memOrders
}

func newMemExecs() *memExecs { return &memExecs{} }

func (m *memExecs) Insert(_ context.Context, e *domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e.ID = m.seq
	m.rows = append(m.rows, *e)
	return nil
}

func (m *memExecs) ListByOrder(_ context.Context, mirrorOrderID int64) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for _, e := range m.rows {
		if e.MirrorOrderID == mirrorOrderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memExecs) HasRecentBalanceFailure(ctx context.Context, pairID int64, since time.Time) (bool, error) {
	m.mu.Lock()
	rows := append([]domain.Execution(nil), m.rows...)
	m.mu.Unlock()

	for _, e := range rows {
		if e.Status != domain.ExecutionFailed || e.ExecutedAt.Before(since) {
			continue
		}
		if !domain.IsBalanceFailure(e.FailReason) {
			continue
		}
		o, err := m.orders.GetByID(ctx, e.MirrorOrderID)
		if err == nil && o.PairID == pairID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memExecs) ListFillsSince(_ context.Context, since time.Time) ([]domain.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Execution
	for _, e := range m.rows {
		if e.Status == domain.ExecutionFilled && !e.ExecutedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memExecs) ListBefore(context.Context, time.Time, int) ([]domain.Execution, error) {
	return nil, nil
}

func (m *memExecs) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memRuntime struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemRuntime() *memRuntime { return &memRuntime{data: make(map[string]string)} }

func (m *memRuntime) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memRuntime) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// recordingSink captures alerts for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Send(_ context.Context, event, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// fakeExec is a scriptable venue adapter for tests that need outcomes the
// deterministic stub cannot produce.
type fakeExec struct {
	mu       sync.Mutex
	requests []executor.Request
	results  []executor.Result
	placeErr error

	cancels   []int64
	cancelErr error
}

func (f *fakeExec) Name() string { return "fake" }

func (f *fakeExec) Place(_ context.Context, req executor.Request) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.placeErr != nil {
		return executor.Result{}, f.placeErr
	}
	if len(f.results) == 0 {
		return executor.Result{Status: domain.OrderStatusFilled, ExecutorRef: "fake-ref"}, nil
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res, nil
}

func (f *fakeExec) Cancel(_ context.Context, order domain.MirrorOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, order.ID)
	return f.cancelErr
}

package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enricoviveri-cyber/onramp-deploy/internal/clock"
	"github.com/enricoviveri-cyber/onramp-deploy/internal/domain"
)

// memStore is an in-memory backend for every repository in this package.
// WithTx serializes transactions and rolls tokens and holds back on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	tokens map[string]domain.Token
	holds  map[string]domain.Hold
	orders map[string]domain.Order
	idem   map[string]domain.IdempotencyRecord

	holdsCreated int
	updateErr    error
}

func newMemStore(tokens ...domain.Token) *memStore {
	s := &memStore{
		tokens: make(map[string]domain.Token),
		holds:  make(map[string]domain.Hold),
		orders: make(map[string]domain.Order),
		idem:   make(map[string]domain.IdempotencyRecord),
	}
	for _, tok := range tokens {
		s.tokens[tok.ID] = tok
	}
	return s
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	tokens := make(map[string]domain.Token, len(s.tokens))
	for k, v := range s.tokens {
		tokens[k] = v
	}
	holds := make(map[string]domain.Hold, len(s.holds))
	for k, v := range s.holds {
		holds[k] = v
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.tokens = tokens
		s.holds = holds
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) GetToken(_ context.Context, id string) (domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return domain.Token{}, domain.ErrTokenNotFound
	}
	return tok, nil
}

func (s *memStore) GetTokenForUpdate(ctx context.Context, id string) (domain.Token, error) {
	return s.GetToken(ctx, id)
}

func (s *memStore) UpdateTokenCounters(_ context.Context, id string, inventory, reserved decimal.Decimal, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return domain.ErrTokenNotFound
	}
	tok.Inventory = inventory
	tok.Reserved = reserved
	tok.UpdatedAt = updatedAt
	s.tokens[id] = tok
	return nil
}

func (s *memStore) InsertTokenIfAbsent(_ context.Context, tok domain.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tok.ID]; ok {
		return false, nil
	}
	s.tokens[tok.ID] = tok
	return true, nil
}

func (s *memStore) CreateHold(_ context.Context, hold domain.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[hold.ID]; ok {
		return domain.ErrHoldExists
	}
	s.holds[hold.ID] = hold
	s.holdsCreated++
	return nil
}

func (s *memStore) GetHold(_ context.Context, id string) (domain.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[id]
	if !ok {
		return domain.Hold{}, domain.ErrHoldNotFound
	}
	return hold, nil
}

func (s *memStore) DeleteHold(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[id]; !ok {
		return domain.ErrHoldNotFound
	}
	delete(s.holds, id)
	return nil
}

func (s *memStore) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]domain.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Hold
	for _, h := range s.holds {
		if h.Expired(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) CreateOrder(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return domain.ErrOrderExists
	}
	s.orders[order.ID] = order
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *memStore) UpdateOrder(_ context.Context, order domain.Order, expected domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	cur, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if cur.Status != expected {
		return domain.ErrOrderConflict
	}
	s.orders[order.ID] = order
	return nil
}

func (s *memStore) ClaimKey(_ context.Context, key string, now, staleBefore time.Time) (domain.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.idem[key]; ok {
		if !rec.Stale(staleBefore) {
			return rec, false, nil
		}
		rec.ClaimedAt = now
		s.idem[key] = rec
		return rec, true, nil
	}
	rec := domain.IdempotencyRecord{Key: key, State: domain.IdempotencyPending, CreatedAt: now, ClaimedAt: now}
	s.idem[key] = rec
	return rec, true, nil
}

func (s *memStore) CompleteKey(_ context.Context, key string, result []byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.idem[key]
	if !ok || rec.State != domain.IdempotencyPending {
		return errors.New("no pending claim")
	}
	rec.State = domain.IdempotencyCompleted
	rec.Result = append([]byte(nil), result...)
	rec.CompletedAt = &now
	s.idem[key] = rec
	return nil
}

func (s *memStore) ReleaseKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.idem[key]; ok && rec.State == domain.IdempotencyPending {
		delete(s.idem, key)
	}
	return nil
}

func (s *memStore) token(t *testing.T, id string) domain.Token {
	t.Helper()
	tok, err := s.GetToken(context.Background(), id)
	if err != nil {
		t.Fatalf("token %s: %v", id, err)
	}
	return tok
}

func (s *memStore) holdCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}

type fakePayment struct {
	mu           sync.Mutex
	authErr      error
	captureErr   error
	bankErr      error
	authCalls    int
	captureCalls int
	bankCalls    int
}

func (p *fakePayment) Authorize(_ context.Context, req AuthorizeRequest) (Authorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authCalls++
	if p.authErr != nil {
		return Authorization{}, p.authErr
	}
	return Authorization{Provider: "fake", Reference: "pay_" + req.OrderID}, nil
}

func (p *fakePayment) Capture(_ context.Context, _ string) (domain.PaymentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captureCalls++
	if p.captureErr != nil {
		return "", p.captureErr
	}
	return domain.PaymentStatusCaptured, nil
}

func (p *fakePayment) ConfirmBank(_ context.Context, _ string) (domain.PaymentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bankCalls++
	if p.bankErr != nil {
		return "", p.bankErr
	}
	return domain.PaymentStatusCaptured, nil
}

type fakeWallet struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (w *fakeWallet) Transfer(_ context.Context, req TransferRequest) (domain.Transfer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return domain.Transfer{}, w.err
	}
	return domain.Transfer{Reference: "0xtx-" + req.OrderID, Network: req.Network}, nil
}

type fakeQuotes struct {
	err error
}

func (q fakeQuotes) Quote(_ context.Context, req QuoteRequest) (domain.Quote, error) {
	if q.err != nil {
		return domain.Quote{}, q.err
	}
	rate := decimal.RequireFromString("1.05")
	return domain.Quote{Rate: rate, CryptoAmount: req.FiatAmount.Div(rate).Round(8)}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []domain.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testToken(id, inventory string) domain.Token {
	return domain.Token{
		ID:           id,
		Symbol:       "USDT",
		Network:      "polygon",
		Name:         "Tether",
		PriceFiat:    dec("0.92"),
		FiatCurrency: "EUR",
		Decimals:     6,
		Inventory:    dec(inventory),
		Reserved:     decimal.Zero,
		Enabled:      true,
	}
}

type testEnv struct {
	store        *memStore
	clock        *clock.Manual
	ledger       *InventoryLedger
	reservations *ReservationManager
	idempotency  *IdempotencyStore
	orders       *OrderOrchestrator
	payment      *fakePayment
	wallet       *fakeWallet
	events       *recordingPublisher
}

func newTestEnv(tokens ...domain.Token) *testEnv {
	store := newMemStore(tokens...)
	clk := clock.NewManual(testNow)
	ledger := NewInventoryLedger(store, clk, nil)
	reservations := NewReservationManager(ledger, store, clk, WithHoldTTL(10*time.Minute))
	idem := NewIdempotencyStore(store, clk, nil)
	payment := &fakePayment{}
	wallet := &fakeWallet{}
	events := &recordingPublisher{}
	orders := NewOrderOrchestrator(store, reservations, idem, Collaborators{
		Payment: payment,
		Wallet:  wallet,
		Quotes:  fakeQuotes{},
		Events:  events,
	}, clk)
	return &testEnv{
		store:        store,
		clock:        clk,
		ledger:       ledger,
		reservations: reservations,
		idempotency:  idem,
		orders:       orders,
		payment:      payment,
		wallet:       wallet,
		events:       events,
	}
}

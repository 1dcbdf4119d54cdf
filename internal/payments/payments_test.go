package payments

// Shared in-memory fixtures for the payment engine tests: a store backing the
// escrow ledger and a processor double that deduplicates by idempotency key
// the way a real processor does.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/processor"
)

// ---------------------------------------------------------------------------
// In-memory escrow store
// ---------------------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
	entries  []*models.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{bookings: make(map[uuid.UUID]*models.Booking)}
}

func (s *memStore) put(b *models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[b.ID] = &cp
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, escrow.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) TransitionState(ctx context.Context, id uuid.UUID, from, to models.PaymentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return escrow.ErrBookingNotFound
	}
	if b.State != from {
		return escrow.ErrStateConflict
	}
	b.State = to
	b.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) SetChargeRef(ctx context.Context, id uuid.UUID, chargeRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return escrow.ErrBookingNotFound
	}
	b.ChargeRef = &chargeRef
	return nil
}

func (s *memStore) ApplyRefund(ctx context.Context, id uuid.UUID, refundedDelta, escrowDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return escrow.ErrBookingNotFound
	}
	b.RefundedCents += refundedDelta
	b.EscrowCents -= escrowDelta
	return nil
}

func (s *memStore) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.CreatedAt = time.Now()
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memStore) ListEntries(ctx context.Context, bookingID uuid.UUID) ([]*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range s.entries {
		if e.BookingID == bookingID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ListInState(ctx context.Context, states []models.PaymentState, updatedBefore time.Time) ([]*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Booking
	for _, b := range s.bookings {
		for _, st := range states {
			if b.State == st && b.UpdatedAt.Before(updatedBefore) {
				cp := *b
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

var _ escrow.Store = (*memStore)(nil)

func (s *memStore) setState(id uuid.UUID, state models.PaymentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[id]; ok {
		b.State = state
		b.UpdatedAt = time.Now()
	}
}

// flakyStore fails a fixed number of state swaps before delegating, simulating
// a transient store error between a confirmation's writes.
type flakyStore struct {
	*memStore
	failures int
}

func (s *flakyStore) TransitionState(ctx context.Context, id uuid.UUID, from, to models.PaymentState) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset by peer")
	}
	return s.memStore.TransitionState(ctx, id, from, to)
}

// interceptStore runs a hook once before the next state swap, squeezing a
// concurrent writer between a handler's read and its compare-and-swap.
type interceptStore struct {
	*memStore
	beforeSwap func()
}

func (s *interceptStore) TransitionState(ctx context.Context, id uuid.UUID, from, to models.PaymentState) error {
	if s.beforeSwap != nil {
		fn := s.beforeSwap
		s.beforeSwap = nil
		fn()
	}
	return s.memStore.TransitionState(ctx, id, from, to)
}

func (s *memStore) countEntries(bookingID uuid.UUID, entryType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.BookingID == bookingID && e.EntryType == entryType {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Processor double
// ---------------------------------------------------------------------------

type mockProcessor struct {
	mu sync.Mutex

	chargeErr   error
	transferErr error
	refundErr   error
	reversalErr error
	lookupErr   error
	status      *processor.AccountStatus

	chargesByKey   map[string]*processor.Charge
	transfersByKey map[string]*processor.Transfer
	refundsByKey   map[string]*processor.Refund
	reversals      []processor.ReversalParams

	chargeCalls   int
	transferCalls int
	refundCalls   int
	seq           int
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{
		chargesByKey:   make(map[string]*processor.Charge),
		transfersByKey: make(map[string]*processor.Transfer),
		refundsByKey:   make(map[string]*processor.Refund),
	}
}

var _ processor.Client = (*mockProcessor)(nil)

func (m *mockProcessor) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s_%d", prefix, m.seq)
}

func (m *mockProcessor) CreateChargeWithSplit(ctx context.Context, p processor.ChargeParams) (*processor.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chargeCalls++
	if m.chargeErr != nil {
		return nil, m.chargeErr
	}
	if existing, ok := m.chargesByKey[p.IdempotencyKey]; ok {
		cp := *existing
		return &cp, nil
	}
	ch := &processor.Charge{
		ID:          m.nextID("ch"),
		AmountCents: p.AmountCents,
		Currency:    p.Currency,
		TransferID:  m.nextID("tr"),
	}
	m.chargesByKey[p.IdempotencyKey] = ch
	cp := *ch
	return &cp, nil
}

func (m *mockProcessor) CreateTransfer(ctx context.Context, p processor.TransferParams) (*processor.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferCalls++
	if m.transferErr != nil {
		return nil, m.transferErr
	}
	if existing, ok := m.transfersByKey[p.IdempotencyKey]; ok {
		cp := *existing
		return &cp, nil
	}
	tr := &processor.Transfer{ID: m.nextID("tr"), AmountCents: p.AmountCents}
	m.transfersByKey[p.IdempotencyKey] = tr
	cp := *tr
	return &cp, nil
}

func (m *mockProcessor) ReverseTransfer(ctx context.Context, p processor.ReversalParams) (*processor.Reversal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reversalErr != nil {
		return nil, m.reversalErr
	}
	m.reversals = append(m.reversals, p)
	return &processor.Reversal{ID: m.nextID("rev"), AmountCents: p.AmountCents}, nil
}

func (m *mockProcessor) CreateRefund(ctx context.Context, p processor.RefundParams) (*processor.Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refundCalls++
	if existing, ok := m.refundsByKey[p.IdempotencyKey]; ok {
		cp := *existing
		return &cp, nil
	}
	if m.refundErr != nil {
		return nil, m.refundErr
	}
	ref := &processor.Refund{ID: m.nextID("re"), AmountCents: p.AmountCents}
	m.refundsByKey[p.IdempotencyKey] = ref
	cp := *ref
	return &cp, nil
}

func (m *mockProcessor) GetAccountStatus(ctx context.Context, accountID string) (*processor.AccountStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != nil {
		cp := *m.status
		return &cp, nil
	}
	return &processor.AccountStatus{AccountID: accountID, ChargesEnabled: true, PayoutsEnabled: true}, nil
}

func (m *mockProcessor) FindChargeByKey(ctx context.Context, key string) (*processor.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if ch, ok := m.chargesByKey[key]; ok {
		cp := *ch
		return &cp, nil
	}
	return nil, processor.ErrNotFound
}

func (m *mockProcessor) FindTransferByKey(ctx context.Context, key string) (*processor.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if tr, ok := m.transfersByKey[key]; ok {
		cp := *tr
		return &cp, nil
	}
	return nil, processor.ErrNotFound
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type memVendors struct {
	vendors map[uuid.UUID]*models.Vendor
}

func newMemVendors(vs ...*models.Vendor) *memVendors {
	m := &memVendors{vendors: make(map[uuid.UUID]*models.Vendor)}
	for _, v := range vs {
		m.vendors[v.ID] = v
	}
	return m
}

func (m *memVendors) GetByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	v, ok := m.vendors[id]
	if !ok {
		return nil, fmt.Errorf("vendor %s not found", id)
	}
	return v, nil
}

var _ VendorSource = (*memVendors)(nil)

func testVendor() *models.Vendor {
	return &models.Vendor{
		ID:                 uuid.New(),
		AccountID:          uuid.New(),
		BusinessName:       "Petal & Stem Florists",
		Category:           "florist",
		Tier:               models.TierFeatured,
		ProcessorAccountID: "acct_test",
		Status:             models.VendorStatusActive,
	}
}

// newBooking mirrors a 4500.00 booking at the 2% featured rate.
func newBooking(vendorID uuid.UUID, state models.PaymentState) *models.Booking {
	return &models.Booking{
		ID:              uuid.New(),
		CustomerID:      uuid.New(),
		VendorID:        vendorID,
		VendorTier:      models.TierFeatured,
		TotalCents:      450000,
		CommissionCents: 9000,
		DepositCents:    132300,
		EscrowCents:     308700,
		Currency:        "usd",
		State:           state,
		UpdatedAt:       time.Now(),
	}
}

// seedHeld puts a booking in escrow_held with its charge and deposit already
// recorded, the way a successful payment leaves it.
func seedHeld(store *memStore, ledger *escrow.Ledger, vendorID uuid.UUID) *models.Booking {
	b := newBooking(vendorID, models.StateEscrowHeld)
	chargeRef := "ch_seed"
	b.ChargeRef = &chargeRef
	store.put(b)
	ctx := context.Background()
	_ = ledger.Append(ctx, b.ID, models.EntryChargeCreated, b.TotalCents, chargeRef)
	_ = ledger.Append(ctx, b.ID, models.EntryDepositTransferred, b.DepositCents, "tr_seed")
	return b
}

func ledgerNet(store *memStore, bookingID uuid.UUID) int64 {
	store.mu.Lock()
	defer store.mu.Unlock()
	var sum int64
	for _, e := range store.entries {
		if e.BookingID == bookingID {
			sum += e.SignedAmount()
		}
	}
	return sum
}

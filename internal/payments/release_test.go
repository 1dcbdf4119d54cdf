package payments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/processor"
)

func TestReleaseTransfersEscrowAndFinalizes(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)

	if err := h.Release(context.Background(), b.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateReleased {
		t.Errorf("expected released, got %s", got.State)
	}
	if n := store.countEntries(b.ID, models.EntryEscrowReleased); n != 1 {
		t.Errorf("expected 1 escrow_released entry, got %d", n)
	}
	// After the full lifecycle the platform retains exactly the commission.
	if net := ledgerNet(store, b.ID); net != b.CommissionCents {
		t.Errorf("expected net %d, got %d", b.CommissionCents, net)
	}
}

func TestReleaseAlreadyReleasedIsNoOp(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := newBooking(vendor.ID, models.StateReleased)
	store.put(b)

	if err := h.Release(context.Background(), b.ID); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if proc.transferCalls != 0 {
		t.Errorf("no transfer may happen on a released booking, got %d", proc.transferCalls)
	}
}

func TestReleaseConcurrentTriggersMoveEscrowOnce(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.Release(context.Background(), b.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("trigger %d: %v", i, err)
		}
	}
	if n := store.countEntries(b.ID, models.EntryEscrowReleased); n != 1 {
		t.Errorf("expected exactly one escrow_released entry, got %d", n)
	}
	if len(proc.transfersByKey) != 1 {
		t.Errorf("expected exactly one transfer at the processor, got %d", len(proc.transfersByKey))
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateReleased {
		t.Errorf("expected released, got %s", got.State)
	}
}

func TestReleaseSurfacesConflictWhenRefundWins(t *testing.T) {
	store := newMemStore()
	inter := &interceptStore{memStore: store}
	ledger := escrow.NewLedger(inter)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)

	// A refund grabs the booking between Release's read and its swap. That
	// booking will never release, so the lost race must not look like
	// success to the caller.
	inter.beforeSwap = func() { store.setState(b.ID, models.StateRefunding) }

	err := h.Release(context.Background(), b.ID)
	if !errors.Is(err, escrow.ErrStateConflict) {
		t.Fatalf("expected the conflict to surface, got %v", err)
	}
	if proc.transferCalls != 0 {
		t.Errorf("no transfer may happen on a refunding booking, got %d", proc.transferCalls)
	}
	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateRefunding {
		t.Errorf("the refund's reservation must be untouched, got %s", got.State)
	}
}

func TestReleaseLostRaceToAnotherReleaseIsNoOp(t *testing.T) {
	store := newMemStore()
	inter := &interceptStore{memStore: store}
	ledger := escrow.NewLedger(inter)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)

	// The concurrent writer was another release that already finished.
	inter.beforeSwap = func() { store.setState(b.ID, models.StateReleased) }

	if err := h.Release(context.Background(), b.ID); err != nil {
		t.Fatalf("losing to another release must be a no-op, got %v", err)
	}
	if proc.transferCalls != 0 {
		t.Errorf("no second transfer may happen, got %d", proc.transferCalls)
	}
}

func TestReleaseRollsBackReservationOnTransferError(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	proc.transferErr = errors.New("processor unavailable")
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)

	if err := h.Release(context.Background(), b.ID); err == nil {
		t.Fatal("expected transfer error to surface")
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateEscrowHeld {
		t.Errorf("expected rollback to escrow_held, got %s", got.State)
	}
	if n := store.countEntries(b.ID, models.EntryEscrowReleased); n != 0 {
		t.Errorf("no release entry may exist after rollback, got %d", n)
	}
}

func TestReleaseFromPartiallyRefunded(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)
	refunds := NewRefundHandler(proc, ledger, DepositClawback, nil)

	part := int64(100000)
	if _, err := refunds.Refund(context.Background(), b.ID, &part); err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if err := h.Release(context.Background(), b.ID); err != nil {
		t.Fatalf("release after partial refund: %v", err)
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateReleased {
		t.Errorf("expected released, got %s", got.State)
	}
	// Only the reduced escrow moves to the vendor.
	entries, _ := ledger.Entries(context.Background(), b.ID)
	for _, e := range entries {
		if e.EntryType == models.EntryEscrowReleased && e.AmountCents != 308700-part {
			t.Errorf("expected release of %d, got %d", 308700-part, e.AmountCents)
		}
	}
}

func TestResumeRecordsLandedTransferOnce(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)
	b.State = models.StateReleasing
	store.put(b)

	// The crashed attempt's transfer landed before the process died.
	proc.transfersByKey["bk:"+b.ID.String()+":release"] = &processor.Transfer{
		ID: "tr_landed", AmountCents: b.EscrowCents,
	}

	if err := h.Resume(context.Background(), b.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateReleased {
		t.Errorf("expected released, got %s", got.State)
	}
	if n := store.countEntries(b.ID, models.EntryEscrowReleased); n != 1 {
		t.Errorf("expected one escrow_released entry, got %d", n)
	}
	if proc.transferCalls != 0 {
		t.Errorf("the landed transfer must not be re-issued, got %d calls", proc.transferCalls)
	}
}

func TestResumeIssuesTransferWhenNoneLanded(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)
	b.State = models.StateReleasing
	store.put(b)

	if err := h.Resume(context.Background(), b.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateReleased {
		t.Errorf("expected released, got %s", got.State)
	}
	if proc.transferCalls != 1 {
		t.Errorf("expected the transfer to be issued once, got %d", proc.transferCalls)
	}
}

func TestResumeLeavesStableStatesAlone(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	vendor := testVendor()
	h := NewReleaseHandler(proc, ledger, newMemVendors(vendor), nil)

	b := seedHeld(store, ledger, vendor.ID)

	if err := h.Resume(context.Background(), b.ID); err != nil {
		t.Fatalf("resume on stable state: %v", err)
	}
	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateEscrowHeld {
		t.Errorf("stable booking must be untouched, got %s", got.State)
	}
}

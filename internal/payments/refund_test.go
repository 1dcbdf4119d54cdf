package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/models"
)

func TestFullRefundWithClawbackNetsToZero(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)

	res, err := h.Refund(context.Background(), b.ID, nil)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.State != models.StateRefunded {
		t.Errorf("expected refunded, got %s", res.State)
	}
	if res.RefundedCents != b.TotalCents {
		t.Errorf("expected full refund of %d, got %d", b.TotalCents, res.RefundedCents)
	}
	if res.ReclaimedCents != b.DepositCents {
		t.Errorf("expected deposit %d reclaimed, got %d", b.DepositCents, res.ReclaimedCents)
	}
	if len(proc.reversals) != 1 {
		t.Errorf("expected one transfer reversal, got %d", len(proc.reversals))
	}
	// charge in, deposit out, deposit back, full refund out: zero retained.
	if net := ledgerNet(store, b.ID); net != 0 {
		t.Errorf("expected ledger to net to zero, got %d", net)
	}
}

func TestFullRefundWithAbsorbLeavesDepositWithVendor(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositAbsorb, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)

	res, err := h.Refund(context.Background(), b.ID, nil)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.ReclaimedCents != 0 {
		t.Errorf("absorb policy must not reclaim, got %d", res.ReclaimedCents)
	}
	if len(proc.reversals) != 0 {
		t.Errorf("absorb policy must not reverse the transfer, got %d", len(proc.reversals))
	}
	// The platform eats the deposit: the ledger nets to minus the deposit.
	if net := ledgerNet(store, b.ID); net != -b.DepositCents {
		t.Errorf("expected net -%d, got %d", b.DepositCents, net)
	}
}

func TestPartialRefundReducesEscrow(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)

	amount := int64(100000)
	res, err := h.Refund(context.Background(), b.ID, &amount)
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if res.State != models.StatePartiallyRefunded {
		t.Errorf("expected partially_refunded, got %s", res.State)
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.EscrowCents != 308700-amount {
		t.Errorf("expected escrow %d, got %d", 308700-amount, got.EscrowCents)
	}
	if got.RefundedCents != amount {
		t.Errorf("expected refunded %d, got %d", amount, got.RefundedCents)
	}
	if len(proc.reversals) != 0 {
		t.Errorf("partial refund must not touch the deposit, got %d reversals", len(proc.reversals))
	}
}

func TestPartialRefundExceedingEscrowRejectsAndRollsBack(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)

	amount := b.EscrowCents + 1
	_, err := h.Refund(context.Background(), b.ID, &amount)
	if !errors.Is(err, ErrRefundExceedsAvailable) {
		t.Fatalf("expected ErrRefundExceedsAvailable, got %v", err)
	}
	if proc.refundCalls != 0 {
		t.Errorf("no processor call may happen for an oversized refund, got %d", proc.refundCalls)
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateEscrowHeld {
		t.Errorf("expected rollback to escrow_held, got %s", got.State)
	}
}

func TestSuccessivePartialRefundsUseFreshKeys(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)

	first, second := int64(50000), int64(70000)
	if _, err := h.Refund(context.Background(), b.ID, &first); err != nil {
		t.Fatalf("first partial: %v", err)
	}
	if _, err := h.Refund(context.Background(), b.ID, &second); err != nil {
		t.Fatalf("second partial: %v", err)
	}

	if len(proc.refundsByKey) != 2 {
		t.Errorf("expected two distinct refunds at the processor, got %d", len(proc.refundsByKey))
	}
	got, _ := store.Get(context.Background(), b.ID)
	if got.RefundedCents != first+second {
		t.Errorf("expected refunded %d, got %d", first+second, got.RefundedCents)
	}
	if got.EscrowCents != 308700-first-second {
		t.Errorf("expected escrow %d, got %d", 308700-first-second, got.EscrowCents)
	}
}

func TestFullRefundAfterPartialRefundsRemainder(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)

	part := int64(100000)
	if _, err := h.Refund(context.Background(), b.ID, &part); err != nil {
		t.Fatalf("partial: %v", err)
	}
	res, err := h.Refund(context.Background(), b.ID, nil)
	if err != nil {
		t.Fatalf("full after partial: %v", err)
	}
	if res.RefundedCents != b.TotalCents-part {
		t.Errorf("expected remainder %d, got %d", b.TotalCents-part, res.RefundedCents)
	}

	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateRefunded {
		t.Errorf("expected refunded, got %s", got.State)
	}
	if got.RefundedCents != b.TotalCents {
		t.Errorf("expected all %d refunded, got %d", b.TotalCents, got.RefundedCents)
	}
	// Clawback recovers the deposit, so everything the customer paid went back.
	if net := ledgerNet(store, b.ID); net != 0 {
		t.Errorf("expected ledger to net to zero, got %d", net)
	}
}

func TestRefundFromDepositPendingRetrySkipsReclaim(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := newBooking(vendor.ID, models.StateDepositPendingRetry)
	chargeRef := "ch_parked"
	b.ChargeRef = &chargeRef
	store.put(b)
	_ = ledger.Append(context.Background(), b.ID, models.EntryChargeCreated, b.TotalCents, chargeRef)

	res, err := h.Refund(context.Background(), b.ID, nil)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if res.ReclaimedCents != 0 {
		t.Errorf("no deposit ever reached the vendor, got reclaim %d", res.ReclaimedCents)
	}
	if len(proc.reversals) != 0 {
		t.Errorf("expected no reversal, got %d", len(proc.reversals))
	}
	if net := ledgerNet(store, b.ID); net != 0 {
		t.Errorf("expected ledger to net to zero, got %d", net)
	}
}

func TestRefundOnTerminalBookingRejected(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := newBooking(vendor.ID, models.StateReleased)
	store.put(b)

	_, err := h.Refund(context.Background(), b.ID, nil)
	if !errors.Is(err, escrow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRefundRollsBackOnProcessorError(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	proc.refundErr = errors.New("processor unavailable")
	h := NewRefundHandler(proc, ledger, DepositAbsorb, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)

	if _, err := h.Refund(context.Background(), b.ID, nil); err == nil {
		t.Fatal("expected refund error to surface")
	}
	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateEscrowHeld {
		t.Errorf("expected rollback to escrow_held, got %s", got.State)
	}
}

func TestAbortRollsBackStaleRefunding(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := seedHeld(store, ledger, vendor.ID)
	b.State = models.StateRefunding
	store.put(b)

	if err := h.Abort(context.Background(), b.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateEscrowHeld {
		t.Errorf("expected rollback to escrow_held, got %s", got.State)
	}
}

func TestAbortInfersDepositPendingRetryOrigin(t *testing.T) {
	store := newMemStore()
	ledger := escrow.NewLedger(store)
	proc := newMockProcessor()
	h := NewRefundHandler(proc, ledger, DepositClawback, nil)

	vendor := testVendor()
	b := newBooking(vendor.ID, models.StateRefunding)
	chargeRef := "ch_parked"
	b.ChargeRef = &chargeRef
	store.put(b)
	_ = ledger.Append(context.Background(), b.ID, models.EntryChargeCreated, b.TotalCents, chargeRef)

	if err := h.Abort(context.Background(), b.ID); err != nil {
		t.Fatalf("abort: %v", err)
	}
	got, _ := store.Get(context.Background(), b.ID)
	if got.State != models.StateDepositPendingRetry {
		t.Errorf("expected rollback to deposit_pending_retry, got %s", got.State)
	}
}

func TestParseDepositPolicy(t *testing.T) {
	if p, err := ParseDepositPolicy(""); err != nil || p != DepositClawback {
		t.Errorf("empty setting must default to clawback, got %s, %v", p, err)
	}
	if p, err := ParseDepositPolicy("absorb"); err != nil || p != DepositAbsorb {
		t.Errorf("expected absorb, got %s, %v", p, err)
	}
	if _, err := ParseDepositPolicy("burn"); err == nil {
		t.Error("expected unknown policy to be rejected")
	}
}

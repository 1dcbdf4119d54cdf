package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weddify/backend/internal/models"
)

// Store is the persistence interface the ledger needs. TransitionState must
// be a compare-and-swap: update the state only if the current state still
// matches from, reporting ErrStateConflict otherwise.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	TransitionState(ctx context.Context, id uuid.UUID, from, to models.PaymentState) error
	SetChargeRef(ctx context.Context, id uuid.UUID, chargeRef string) error
	ApplyRefund(ctx context.Context, id uuid.UUID, refundedDelta, escrowDelta int64) error
	AppendEntry(ctx context.Context, e *models.LedgerEntry) error
	ListEntries(ctx context.Context, bookingID uuid.UUID) ([]*models.LedgerEntry, error)
	ListInState(ctx context.Context, states []models.PaymentState, updatedBefore time.Time) ([]*models.Booking, error)
}

// Ledger enforces the payment state machine over a Store. It owns transition
// legality; the Store owns atomicity of each individual swap.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return l.store.Get(ctx, id)
}

func (l *Ledger) Entries(ctx context.Context, bookingID uuid.UUID) ([]*models.LedgerEntry, error) {
	return l.store.ListEntries(ctx, bookingID)
}

// Transition moves a booking from -> to. A transition the machine never
// permits fails with ErrInvalidTransition before touching the store; a legal
// transition lost to a concurrent writer fails with ErrStateConflict.
func (l *Ledger) Transition(ctx context.Context, id uuid.UUID, from, to models.PaymentState) error {
	if !Allowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return l.store.TransitionState(ctx, id, from, to)
}

// Append records one money-moving event. Entries are append-only.
func (l *Ledger) Append(ctx context.Context, bookingID uuid.UUID, entryType string, amountCents int64, externalRef string) error {
	return l.store.AppendEntry(ctx, &models.LedgerEntry{
		ID:          uuid.New(),
		BookingID:   bookingID,
		EntryType:   entryType,
		AmountCents: amountCents,
		ExternalRef: externalRef,
	})
}

// RecordCharge stores the processor charge reference and appends the
// charge_created entry. The booking stays in its current state; the charge
// alone moves no money to the vendor. Idempotent: a retry whose earlier
// attempt already appended the entry does not append another, so the
// reconciliation sum survives retried confirmations.
func (l *Ledger) RecordCharge(ctx context.Context, bookingID uuid.UUID, chargeRef string, amountCents int64) error {
	if err := l.store.SetChargeRef(ctx, bookingID, chargeRef); err != nil {
		return err
	}
	entries, err := l.store.ListEntries(ctx, bookingID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.EntryType == models.EntryChargeCreated {
			return nil
		}
	}
	return l.Append(ctx, bookingID, models.EntryChargeCreated, amountCents, chargeRef)
}

// ConfirmDeposit records the confirmed deposit transfer and advances
// from -> deposit_paid -> escrow_held. The second hop is automatic: the
// escrow amount is logically held the instant the charge clears, no further
// processor call involved.
func (l *Ledger) ConfirmDeposit(ctx context.Context, bookingID uuid.UUID, from models.PaymentState, transferRef string, depositCents int64) error {
	if err := l.Transition(ctx, bookingID, from, models.StateDepositPaid); err != nil {
		return err
	}
	if err := l.Append(ctx, bookingID, models.EntryDepositTransferred, depositCents, transferRef); err != nil {
		return err
	}
	return l.Transition(ctx, bookingID, models.StateDepositPaid, models.StateEscrowHeld)
}

// MarkDepositPendingRetry parks a booking whose charge succeeded but whose
// deposit transfer did not. The reconciliation sweep picks it up; it must
// never silently advance to escrow_held.
func (l *Ledger) MarkDepositPendingRetry(ctx context.Context, bookingID uuid.UUID) error {
	return l.Transition(ctx, bookingID, models.StatePending, models.StateDepositPendingRetry)
}

// ApplyRefund adjusts the booking's refunded/escrow balances after a refund
// settles. escrowDelta is subtracted from the remaining escrow.
func (l *Ledger) ApplyRefund(ctx context.Context, bookingID uuid.UUID, refundedDelta, escrowDelta int64) error {
	return l.store.ApplyRefund(ctx, bookingID, refundedDelta, escrowDelta)
}

// ListInState returns bookings sitting in any of the given states whose last
// update is older than updatedBefore. Used by the reconciliation sweep.
func (l *Ledger) ListInState(ctx context.Context, states []models.PaymentState, updatedBefore time.Time) ([]*models.Booking, error) {
	return l.store.ListInState(ctx, states, updatedBefore)
}

// ReconciledSum returns the signed sum of the booking's ledger entries: the
// net amount the platform currently retains for it.
func (l *Ledger) ReconciledSum(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	entries, err := l.store.ListEntries(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, e := range entries {
		sum += e.SignedAmount()
	}
	return sum, nil
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/processor"
)

// VendorSource resolves a vendor's payout account for transfers.
type VendorSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
}

// ReleaseHandler transfers the held escrow amount to the vendor once the
// service is marked completed. The engine does not decide when a service is
// done; it only acts on that external signal.
type ReleaseHandler struct {
	processor processor.Client
	ledger    *escrow.Ledger
	vendors   VendorSource
	log       *slog.Logger
}

func NewReleaseHandler(pc processor.Client, ledger *escrow.Ledger, vendors VendorSource, log *slog.Logger) *ReleaseHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ReleaseHandler{processor: pc, ledger: ledger, vendors: vendors, log: log}
}

// Release moves a booking escrow_held (or partially_refunded) -> released,
// transferring the remaining escrow to the vendor. The reservation swap to
// releasing serializes concurrent triggers: exactly one wins, the rest see a
// state conflict and no-op. A booking already released is a no-op.
func (h *ReleaseHandler) Release(ctx context.Context, bookingID uuid.UUID) error {
	b, err := h.ledger.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.State == models.StateReleased {
		return nil
	}
	if b.State == models.StateReleasing {
		h.log.Info("escrow release already in progress", "booking_id", bookingID)
		return nil
	}

	origin := b.State
	if err := h.ledger.Transition(ctx, bookingID, origin, models.StateReleasing); err != nil {
		if errors.Is(err, escrow.ErrStateConflict) {
			// Losing the swap only means success if the winner was another
			// release. A concurrent refund also conflicts here, and that
			// booking will never release.
			current, getErr := h.ledger.Get(ctx, bookingID)
			if getErr != nil {
				return getErr
			}
			if current.State == models.StateReleasing || current.State == models.StateReleased {
				h.log.Info("escrow release already in progress", "booking_id", bookingID)
				return nil
			}
			return fmt.Errorf("%w: booking %s moved to %s", escrow.ErrStateConflict, bookingID, current.State)
		}
		return err
	}

	if err := h.transferAndFinalize(ctx, b); err != nil {
		if abortErr := h.ledger.Transition(ctx, bookingID, models.StateReleasing, origin); abortErr != nil {
			h.log.Error("failed to roll back release reservation",
				"booking_id", bookingID, "error", abortErr)
		}
		return err
	}
	return nil
}

func (h *ReleaseHandler) transferAndFinalize(ctx context.Context, b *models.Booking) error {
	// A fully partially-refunded booking can have nothing left to transfer.
	if b.EscrowCents == 0 {
		return h.ledger.Transition(ctx, b.ID, models.StateReleasing, models.StateReleased)
	}

	vendor, err := h.vendors.GetByID(ctx, b.VendorID)
	if err != nil {
		return fmt.Errorf("resolve vendor: %w", err)
	}
	sourceCharge := ""
	if b.ChargeRef != nil {
		sourceCharge = *b.ChargeRef
	}

	tr, err := h.processor.CreateTransfer(ctx, processor.TransferParams{
		AmountCents:        b.EscrowCents,
		Currency:           b.Currency,
		DestinationAccount: vendor.ProcessorAccountID,
		SourceChargeID:     sourceCharge,
		IdempotencyKey:     releaseKey(b.ID),
	})
	if err != nil {
		return fmt.Errorf("escrow release transfer: %w", err)
	}

	if err := h.ledger.Append(ctx, b.ID, models.EntryEscrowReleased, b.EscrowCents, tr.ID); err != nil {
		return fmt.Errorf("record escrow release: %w", err)
	}
	return h.ledger.Transition(ctx, b.ID, models.StateReleasing, models.StateReleased)
}

// Resume finishes a release that was interrupted mid-flight (crash or
// timeout while in releasing). The deterministic transfer key makes this
// safe: if the transfer already landed it is found and recorded once, and if
// it never landed it is issued with the same key.
func (h *ReleaseHandler) Resume(ctx context.Context, bookingID uuid.UUID) error {
	b, err := h.ledger.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.State != models.StateReleasing {
		return nil
	}

	tr, err := h.processor.FindTransferByKey(ctx, releaseKey(b.ID))
	if err != nil {
		if !errors.Is(err, processor.ErrNotFound) {
			return fmt.Errorf("lookup release transfer: %w", err)
		}
		return h.transferAndFinalize(ctx, b)
	}

	recorded, err := h.hasEntry(ctx, b.ID, models.EntryEscrowReleased)
	if err != nil {
		return err
	}
	if !recorded {
		if err := h.ledger.Append(ctx, b.ID, models.EntryEscrowReleased, b.EscrowCents, tr.ID); err != nil {
			return fmt.Errorf("record escrow release: %w", err)
		}
	}
	return h.ledger.Transition(ctx, b.ID, models.StateReleasing, models.StateReleased)
}

func (h *ReleaseHandler) hasEntry(ctx context.Context, bookingID uuid.UUID, entryType string) (bool, error) {
	entries, err := h.ledger.Entries(ctx, bookingID)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.EntryType == entryType {
			return true, nil
		}
	}
	return false, nil
}

// originAfterAbort infers the stable state a reserved booking rolls back to.
// deposit_paid is transient, so the only stable pre-release states are
// escrow_held and partially_refunded.
func originAfterAbort(b *models.Booking) models.PaymentState {
	if b.RefundedCents > 0 {
		return models.StatePartiallyRefunded
	}
	return models.StateEscrowHeld
}

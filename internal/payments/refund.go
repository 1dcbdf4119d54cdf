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

// ErrRefundExceedsAvailable is returned when the requested amount exceeds
// what remains refundable on the booking.
var ErrRefundExceedsAvailable = errors.New("refund exceeds available amount")

// DepositPolicy decides what happens to a deposit the vendor already
// received when the customer is refunded in full: claw it back from the
// vendor's connected account, or absorb the loss on the platform.
type DepositPolicy string

const (
	DepositClawback DepositPolicy = "clawback"
	DepositAbsorb   DepositPolicy = "absorb"
)

// ParseDepositPolicy maps the REFUND_DEPOSIT_POLICY setting to a policy,
// defaulting to clawback.
func ParseDepositPolicy(s string) (DepositPolicy, error) {
	switch s {
	case "", string(DepositClawback):
		return DepositClawback, nil
	case string(DepositAbsorb):
		return DepositAbsorb, nil
	}
	return "", fmt.Errorf("unknown deposit policy %q", s)
}

// RefundResult reports what a refund moved.
type RefundResult struct {
	RefundedCents  int64               `json:"refunded_cents"`
	ReclaimedCents int64               `json:"reclaimed_cents"`
	State          models.PaymentState `json:"state"`
}

// RefundHandler reverses some or all of the customer charge before
// completion, reconciling any deposit already paid to the vendor according
// to the configured policy.
type RefundHandler struct {
	processor processor.Client
	ledger    *escrow.Ledger
	policy    DepositPolicy
	log       *slog.Logger
}

func NewRefundHandler(pc processor.Client, ledger *escrow.Ledger, policy DepositPolicy, log *slog.Logger) *RefundHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RefundHandler{processor: pc, ledger: ledger, policy: policy, log: log}
}

// Refund refunds the booking. amountCents nil refunds the full remaining
// customer payment; a value requests a partial (dispute/negotiated) refund,
// which reduces the remaining escrow before release. Partial refunds must
// not exceed the remaining escrow.
func (h *RefundHandler) Refund(ctx context.Context, bookingID uuid.UUID, amountCents *int64) (*RefundResult, error) {
	b, err := h.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	origin := b.State
	if err := h.ledger.Transition(ctx, bookingID, origin, models.StateRefunding); err != nil {
		return nil, err
	}

	res, err := h.execute(ctx, b, amountCents)
	if err != nil {
		if abortErr := h.ledger.Transition(ctx, bookingID, models.StateRefunding, origin); abortErr != nil {
			h.log.Error("failed to roll back refund reservation",
				"booking_id", bookingID, "error", abortErr)
		}
		return nil, err
	}
	return res, nil
}

func (h *RefundHandler) execute(ctx context.Context, b *models.Booking, amountCents *int64) (*RefundResult, error) {
	if b.ChargeRef == nil {
		return nil, fmt.Errorf("booking %s has no charge to refund", b.ID)
	}
	if amountCents != nil {
		return h.partial(ctx, b, *amountCents)
	}
	return h.full(ctx, b)
}

// partial refunds part of the held escrow back to the customer. The booking
// keeps its remaining escrow and may still release it on completion.
func (h *RefundHandler) partial(ctx context.Context, b *models.Booking, amount int64) (*RefundResult, error) {
	if amount <= 0 || amount > b.EscrowCents {
		return nil, fmt.Errorf("%w: requested %d, escrow remaining %d",
			ErrRefundExceedsAvailable, amount, b.EscrowCents)
	}

	ref, err := h.processor.CreateRefund(ctx, processor.RefundParams{
		ChargeID:       *b.ChargeRef,
		AmountCents:    amount,
		IdempotencyKey: refundKey(b.ID, b.RefundedCents),
	})
	if err != nil {
		return nil, fmt.Errorf("partial refund: %w", err)
	}

	if err := h.ledger.Append(ctx, b.ID, models.EntryRefundIssued, amount, ref.ID); err != nil {
		return nil, fmt.Errorf("record refund: %w", err)
	}
	if err := h.ledger.ApplyRefund(ctx, b.ID, amount, amount); err != nil {
		return nil, fmt.Errorf("apply refund: %w", err)
	}
	if err := h.ledger.Transition(ctx, b.ID, models.StateRefunding, models.StatePartiallyRefunded); err != nil {
		return nil, err
	}
	return &RefundResult{RefundedCents: amount, State: models.StatePartiallyRefunded}, nil
}

// full refunds everything the customer is still owed. If the vendor already
// received the deposit, the clawback policy reverses that transfer first;
// the absorb policy refunds the customer in full and the platform eats the
// deposit.
func (h *RefundHandler) full(ctx context.Context, b *models.Booking) (*RefundResult, error) {
	remaining := b.TotalCents - b.RefundedCents
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: nothing remains refundable", ErrRefundExceedsAvailable)
	}

	entries, err := h.ledger.Entries(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	var reclaimed int64
	if h.policy == DepositClawback {
		reclaimed, err = h.reclaimDeposit(ctx, b, entries)
		if err != nil {
			return nil, err
		}
	}

	ref, err := h.processor.CreateRefund(ctx, processor.RefundParams{
		ChargeID:       *b.ChargeRef,
		AmountCents:    remaining,
		IdempotencyKey: refundKey(b.ID, b.RefundedCents),
	})
	if err != nil {
		return nil, fmt.Errorf("full refund: %w", err)
	}

	if err := h.ledger.Append(ctx, b.ID, models.EntryRefundIssued, remaining, ref.ID); err != nil {
		return nil, fmt.Errorf("record refund: %w", err)
	}
	if err := h.ledger.ApplyRefund(ctx, b.ID, remaining, b.EscrowCents); err != nil {
		return nil, fmt.Errorf("apply refund: %w", err)
	}
	if err := h.ledger.Transition(ctx, b.ID, models.StateRefunding, models.StateRefunded); err != nil {
		return nil, err
	}
	return &RefundResult{RefundedCents: remaining, ReclaimedCents: reclaimed, State: models.StateRefunded}, nil
}

// reclaimDeposit reverses the deposit transfer, if one ever reached the
// vendor. What reached the vendor is computed from the recorded ledger
// entries, not guessed from the state. Already-reclaimed deposits (an
// earlier refund attempt that failed later on) are skipped.
func (h *RefundHandler) reclaimDeposit(ctx context.Context, b *models.Booking, entries []*models.LedgerEntry) (int64, error) {
	var transferRef string
	var transferred int64
	for _, e := range entries {
		switch e.EntryType {
		case models.EntryDepositTransferred:
			transferRef = e.ExternalRef
			transferred = e.AmountCents
		case models.EntryDepositReclaimed:
			return e.AmountCents, nil
		}
	}
	if transferred == 0 {
		return 0, nil
	}

	rev, err := h.processor.ReverseTransfer(ctx, processor.ReversalParams{
		TransferID:     transferRef,
		AmountCents:    transferred,
		IdempotencyKey: reclaimKey(b.ID),
	})
	if err != nil {
		return 0, fmt.Errorf("reclaim deposit: %w", err)
	}
	if err := h.ledger.Append(ctx, b.ID, models.EntryDepositReclaimed, transferred, rev.ID); err != nil {
		return 0, fmt.Errorf("record deposit reclaim: %w", err)
	}
	return transferred, nil
}

// Abort rolls a booking stuck in refunding back to its stable origin state.
// The refund idempotency key guarantees a re-issued refund cannot move money
// twice, so rolling back an in-doubt refund is always safe.
func (h *RefundHandler) Abort(ctx context.Context, bookingID uuid.UUID) error {
	b, err := h.ledger.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.State != models.StateRefunding {
		return nil
	}
	entries, err := h.ledger.Entries(ctx, bookingID)
	if err != nil {
		return err
	}
	origin := refundOrigin(b, entries)
	h.log.Warn("rolling back stale refund reservation",
		"booking_id", bookingID, "origin", origin)
	return h.ledger.Transition(ctx, bookingID, models.StateRefunding, origin)
}

// refundOrigin infers the stable state a refunding booking came from: the
// deposit never reached the vendor only in deposit_pending_retry, and a
// prior partial refund pins partially_refunded.
func refundOrigin(b *models.Booking, entries []*models.LedgerEntry) models.PaymentState {
	depositTransferred := false
	for _, e := range entries {
		if e.EntryType == models.EntryDepositTransferred {
			depositTransferred = true
		}
	}
	if !depositTransferred {
		return models.StateDepositPendingRetry
	}
	return originAfterAbort(b)
}

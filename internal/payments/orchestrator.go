// Package payments moves money: it translates booking splits into processor
// requests and drives the escrow ledger through its transitions. Everything
// here is idempotent; the ledger's compare-and-swap picks exactly one winner
// under concurrent triggers.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/processor"
	"github.com/weddify/backend/internal/split"
)

// ErrProcessorRejected wraps a processor decline. The booking stays pending;
// no partial state is created.
var ErrProcessorRejected = errors.New("payment rejected by processor")

// ErrPartialFailure means the charge succeeded but the deposit transfer did
// not. The booking is parked in deposit_pending_retry for the sweep.
var ErrPartialFailure = errors.New("deposit transfer pending retry")

// ErrVendorNotPayable means the vendor's connected account cannot receive
// charges or payouts; no payment is attempted.
var ErrVendorNotPayable = errors.New("vendor account is not payable")

// ErrPaymentUnconfirmed means the processor call failed in transit and the
// idempotency-key lookup found no durable charge. Safe to retry.
var ErrPaymentUnconfirmed = errors.New("payment not confirmed, retry")

// ErrSplitMismatch is an invariant violation: the split arithmetic does not
// reconcile with the booking. The operation halts; nothing is guessed.
var ErrSplitMismatch = errors.New("split does not reconcile with booking amounts")

// Orchestrator creates the booking charge: one destination charge that bills
// the customer the full amount, retains the commission as the platform fee,
// and forwards the deposit to the vendor's connected account.
type Orchestrator struct {
	processor processor.Client
	ledger    *escrow.Ledger
	log       *slog.Logger
}

func NewOrchestrator(pc processor.Client, ledger *escrow.Ledger, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{processor: pc, ledger: ledger, log: log}
}

// CreateBookingPayment charges the customer and confirms the deposit. On
// success the booking advances pending -> deposit_paid -> escrow_held with
// charge_created and deposit_transferred entries. See the error sentinels for
// the failure contract.
func (o *Orchestrator) CreateBookingPayment(ctx context.Context, b *models.Booking, vendor *models.Vendor, sp split.Result) (*processor.Charge, error) {
	if b.State != models.StatePending {
		return nil, fmt.Errorf("%w: booking %s is %s", escrow.ErrInvalidTransition, b.ID, b.State)
	}
	if err := checkSplit(b, sp); err != nil {
		return nil, err
	}

	status, err := o.processor.GetAccountStatus(ctx, vendor.ProcessorAccountID)
	if err != nil {
		return nil, fmt.Errorf("check vendor account: %w", err)
	}
	if standing := status.Standing(); standing != processor.AccountEnabled {
		return nil, fmt.Errorf("%w: %s", ErrVendorNotPayable, standing)
	}

	charge, err := o.processor.CreateChargeWithSplit(ctx, processor.ChargeParams{
		AmountCents:        sp.TotalCents,
		Currency:           b.Currency,
		FeeCents:           sp.CommissionCents,
		DestinationAccount: vendor.ProcessorAccountID,
		TransferCents:      sp.DepositCents,
		IdempotencyKey:     chargeKey(b.ID),
	})
	if err != nil {
		return o.resolveChargeFailure(ctx, b, sp, err)
	}
	return charge, o.confirmCharge(ctx, b, sp, charge, models.StatePending)
}

// resolveChargeFailure decides what a failed CreateChargeWithSplit means. A
// decline is final. A transfer failure after a successful charge parks the
// booking for retry. Anything else is an in-doubt transport failure: poll the
// processor by idempotency key before deciding — never assume failure.
func (o *Orchestrator) resolveChargeFailure(ctx context.Context, b *models.Booking, sp split.Result, callErr error) (*processor.Charge, error) {
	var decline *processor.DeclineError
	if errors.As(callErr, &decline) {
		return nil, fmt.Errorf("%w: %s", ErrProcessorRejected, decline.Code)
	}

	var transferFailed *processor.TransferFailedError
	if errors.As(callErr, &transferFailed) {
		if err := o.parkForRetry(ctx, b, transferFailed.ChargeID, sp.TotalCents); err != nil {
			return nil, err
		}
		return nil, ErrPartialFailure
	}

	charge, lookupErr := o.processor.FindChargeByKey(ctx, chargeKey(b.ID))
	if lookupErr != nil {
		if errors.Is(lookupErr, processor.ErrNotFound) {
			// Charge never landed; the booking stays pending and the
			// caller may retry with the same key.
			return nil, fmt.Errorf("%w: %v", ErrPaymentUnconfirmed, callErr)
		}
		return nil, fmt.Errorf("%w: lookup failed: %v", ErrPaymentUnconfirmed, lookupErr)
	}

	o.log.Warn("charge confirmed via idempotency lookup after transport failure",
		"booking_id", b.ID, "charge_id", charge.ID, "error", callErr)

	if charge.TransferID == "" {
		if err := o.parkForRetry(ctx, b, charge.ID, sp.TotalCents); err != nil {
			return nil, err
		}
		return nil, ErrPartialFailure
	}
	return charge, o.confirmCharge(ctx, b, sp, charge, models.StatePending)
}

func (o *Orchestrator) confirmCharge(ctx context.Context, b *models.Booking, sp split.Result, charge *processor.Charge, from models.PaymentState) error {
	if err := o.ledger.RecordCharge(ctx, b.ID, charge.ID, sp.TotalCents); err != nil {
		return fmt.Errorf("record charge: %w", err)
	}
	if err := o.ledger.ConfirmDeposit(ctx, b.ID, from, charge.TransferID, sp.DepositCents); err != nil {
		return fmt.Errorf("confirm deposit: %w", err)
	}
	return nil
}

func (o *Orchestrator) parkForRetry(ctx context.Context, b *models.Booking, chargeID string, totalCents int64) error {
	if err := o.ledger.RecordCharge(ctx, b.ID, chargeID, totalCents); err != nil {
		return fmt.Errorf("record charge: %w", err)
	}
	if err := o.ledger.MarkDepositPendingRetry(ctx, b.ID); err != nil {
		return fmt.Errorf("mark deposit pending retry: %w", err)
	}
	o.log.Warn("charge succeeded but deposit transfer failed, parked for retry",
		"booking_id", b.ID, "charge_id", chargeID)
	return nil
}

// RetryDeposit re-issues the deposit transfer for a booking stuck in
// deposit_pending_retry. The transfer key is deterministic, so a transfer
// that actually went through the first time is found by lookup and simply
// confirmed.
func (o *Orchestrator) RetryDeposit(ctx context.Context, b *models.Booking, vendor *models.Vendor) error {
	if b.State != models.StateDepositPendingRetry {
		return fmt.Errorf("%w: booking %s is %s", escrow.ErrInvalidTransition, b.ID, b.State)
	}
	if b.ChargeRef == nil {
		return fmt.Errorf("booking %s has no charge to transfer against", b.ID)
	}

	key := depositKey(b.ID)
	if tr, err := o.processor.FindTransferByKey(ctx, key); err == nil {
		return o.ledger.ConfirmDeposit(ctx, b.ID, models.StateDepositPendingRetry, tr.ID, b.DepositCents)
	} else if !errors.Is(err, processor.ErrNotFound) {
		return fmt.Errorf("lookup deposit transfer: %w", err)
	}

	tr, err := o.processor.CreateTransfer(ctx, processor.TransferParams{
		AmountCents:        b.DepositCents,
		Currency:           b.Currency,
		DestinationAccount: vendor.ProcessorAccountID,
		SourceChargeID:     *b.ChargeRef,
		IdempotencyKey:     key,
	})
	if err != nil {
		return fmt.Errorf("retry deposit transfer: %w", err)
	}
	return o.ledger.ConfirmDeposit(ctx, b.ID, models.StateDepositPendingRetry, tr.ID, b.DepositCents)
}

// ResumeConfirmation finishes a confirmation interrupted between its writes:
// a pending booking whose charge landed but never advanced, or a booking
// stranded in the transient deposit_paid state before the automatic hop to
// escrow_held. Used by the sweep; a booking with nothing to resume is a no-op.
func (o *Orchestrator) ResumeConfirmation(ctx context.Context, b *models.Booking) error {
	switch b.State {
	case models.StatePending:
		if b.ChargeRef == nil {
			return nil
		}
		charge, err := o.processor.FindChargeByKey(ctx, chargeKey(b.ID))
		if err != nil {
			if errors.Is(err, processor.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("lookup charge: %w", err)
		}
		if err := o.ledger.RecordCharge(ctx, b.ID, charge.ID, b.TotalCents); err != nil {
			return fmt.Errorf("record charge: %w", err)
		}
		if charge.TransferID == "" {
			return o.ledger.MarkDepositPendingRetry(ctx, b.ID)
		}
		o.log.Info("resuming interrupted payment confirmation",
			"booking_id", b.ID, "charge_id", charge.ID)
		return o.ledger.ConfirmDeposit(ctx, b.ID, models.StatePending, charge.TransferID, b.DepositCents)
	case models.StateDepositPaid:
		return o.finishHold(ctx, b)
	}
	return nil
}

// finishHold completes deposit_paid -> escrow_held, first making sure the
// deposit transfer entry was recorded. A booking reaches deposit_paid only
// after a transfer reference existed, so the transfer is found either under
// the retry key or on the charge itself.
func (o *Orchestrator) finishHold(ctx context.Context, b *models.Booking) error {
	entries, err := o.ledger.Entries(ctx, b.ID)
	if err != nil {
		return err
	}
	recorded := false
	for _, e := range entries {
		if e.EntryType == models.EntryDepositTransferred {
			recorded = true
			break
		}
	}
	if !recorded {
		ref, err := o.findDepositRef(ctx, b)
		if err != nil {
			return err
		}
		if err := o.ledger.Append(ctx, b.ID, models.EntryDepositTransferred, b.DepositCents, ref); err != nil {
			return fmt.Errorf("record deposit transfer: %w", err)
		}
	}
	o.log.Info("finishing interrupted escrow hold", "booking_id", b.ID)
	return o.ledger.Transition(ctx, b.ID, models.StateDepositPaid, models.StateEscrowHeld)
}

func (o *Orchestrator) findDepositRef(ctx context.Context, b *models.Booking) (string, error) {
	if tr, err := o.processor.FindTransferByKey(ctx, depositKey(b.ID)); err == nil {
		return tr.ID, nil
	} else if !errors.Is(err, processor.ErrNotFound) {
		return "", fmt.Errorf("lookup deposit transfer: %w", err)
	}
	charge, err := o.processor.FindChargeByKey(ctx, chargeKey(b.ID))
	if err != nil {
		return "", fmt.Errorf("lookup charge: %w", err)
	}
	if charge.TransferID == "" {
		return "", fmt.Errorf("booking %s is deposit_paid but no deposit transfer exists", b.ID)
	}
	return charge.TransferID, nil
}

// checkSplit verifies the split reconciles with the booking before any
// external call. A mismatch is a bug, not a retryable condition.
func checkSplit(b *models.Booking, sp split.Result) error {
	if sp.TotalCents != b.TotalCents ||
		sp.CommissionCents+sp.VendorNetCents != sp.TotalCents ||
		sp.DepositCents+sp.EscrowCents != sp.VendorNetCents {
		return fmt.Errorf("%w: booking %s", ErrSplitMismatch, b.ID)
	}
	return nil
}

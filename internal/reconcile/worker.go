// Package reconcile drives the background repair loop: deposit transfers
// that failed after a successful charge are retried, and reservation states
// abandoned by a crash are resumed or rolled back.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/payments"
)

// staleAfter is how long a booking may sit in a transient state before the
// sweep considers it abandoned.
const staleAfter = 5 * time.Minute

type DepositRetryArgs struct {
	BookingID uuid.UUID `json:"booking_id"`
}

func (DepositRetryArgs) Kind() string { return "deposit_retry" }

type SweepArgs struct{}

func (SweepArgs) Kind() string { return "escrow_sweep" }

// InsertFunc enqueues a job. Wired to the River client after it is built.
type InsertFunc func(ctx context.Context, args river.JobArgs) error

// DepositRetryWorker re-issues the deposit transfer for a booking parked in
// deposit_pending_retry.
type DepositRetryWorker struct {
	river.WorkerDefaults[DepositRetryArgs]
	ledger  *escrow.Ledger
	vendors payments.VendorSource
	orch    *payments.Orchestrator
	log     *slog.Logger
}

func NewDepositRetryWorker(ledger *escrow.Ledger, vendors payments.VendorSource, orch *payments.Orchestrator, log *slog.Logger) *DepositRetryWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DepositRetryWorker{ledger: ledger, vendors: vendors, orch: orch, log: log}
}

func (w *DepositRetryWorker) Work(ctx context.Context, job *river.Job[DepositRetryArgs]) error {
	b, err := w.ledger.Get(ctx, job.Args.BookingID)
	if err != nil {
		if errors.Is(err, escrow.ErrBookingNotFound) {
			return nil
		}
		return fmt.Errorf("load booking: %w", err)
	}
	if b.State != models.StateDepositPendingRetry {
		// Already repaired by a concurrent retry or a refund.
		return nil
	}
	vendor, err := w.vendors.GetByID(ctx, b.VendorID)
	if err != nil {
		return fmt.Errorf("resolve vendor: %w", err)
	}
	if err := w.orch.RetryDeposit(ctx, b, vendor); err != nil {
		if errors.Is(err, escrow.ErrInvalidTransition) || errors.Is(err, escrow.ErrStateConflict) {
			w.log.Info("deposit retry lost to concurrent update", "booking_id", b.ID)
			return nil
		}
		return err
	}
	w.log.Info("deposit transfer repaired", "booking_id", b.ID)
	return nil
}

// SweepWorker is the periodic reconciliation pass. It enqueues a deposit
// retry for every parked booking and finishes or rolls back reservation
// states left behind by a crash.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	ledger  *escrow.Ledger
	orch    *payments.Orchestrator
	release *payments.ReleaseHandler
	refunds *payments.RefundHandler
	insert  InsertFunc
	log     *slog.Logger
}

func NewSweepWorker(ledger *escrow.Ledger, orch *payments.Orchestrator, release *payments.ReleaseHandler, refunds *payments.RefundHandler, insert InsertFunc, log *slog.Logger) *SweepWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SweepWorker{ledger: ledger, orch: orch, release: release, refunds: refunds, insert: insert, log: log}
}

func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	cutoff := time.Now().Add(-staleAfter)

	parked, err := w.ledger.ListInState(ctx, []models.PaymentState{models.StateDepositPendingRetry}, cutoff)
	if err != nil {
		return fmt.Errorf("list parked deposits: %w", err)
	}
	for _, b := range parked {
		if err := w.insert(ctx, DepositRetryArgs{BookingID: b.ID}); err != nil {
			w.log.Error("enqueue deposit retry failed", "booking_id", b.ID, "error", err)
		}
	}

	releasing, err := w.ledger.ListInState(ctx, []models.PaymentState{models.StateReleasing}, cutoff)
	if err != nil {
		return fmt.Errorf("list stale releases: %w", err)
	}
	for _, b := range releasing {
		if err := w.release.Resume(ctx, b.ID); err != nil {
			w.log.Error("resume stale release failed", "booking_id", b.ID, "error", err)
		}
	}

	refunding, err := w.ledger.ListInState(ctx, []models.PaymentState{models.StateRefunding}, cutoff)
	if err != nil {
		return fmt.Errorf("list stale refunds: %w", err)
	}
	for _, b := range refunding {
		if err := w.refunds.Abort(ctx, b.ID); err != nil {
			w.log.Error("abort stale refund failed", "booking_id", b.ID, "error", err)
		}
	}

	// Confirmations interrupted mid-write: a pending booking whose charge
	// landed, or a booking stranded in the transient deposit_paid state.
	confirming, err := w.ledger.ListInState(ctx, []models.PaymentState{models.StatePending, models.StateDepositPaid}, cutoff)
	if err != nil {
		return fmt.Errorf("list stale confirmations: %w", err)
	}
	resumed := 0
	for _, b := range confirming {
		if b.State == models.StatePending && b.ChargeRef == nil {
			continue // never charged, nothing to resume
		}
		resumed++
		if err := w.orch.ResumeConfirmation(ctx, b); err != nil {
			if errors.Is(err, escrow.ErrStateConflict) {
				w.log.Info("confirmation resume lost to concurrent update", "booking_id", b.ID)
				continue
			}
			w.log.Error("resume stale confirmation failed", "booking_id", b.ID, "error", err)
		}
	}

	if n := len(parked) + len(releasing) + len(refunding) + resumed; n > 0 {
		w.log.Info("reconciliation sweep repaired bookings",
			"parked", len(parked), "releasing", len(releasing),
			"refunding", len(refunding), "confirming", resumed)
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry_type values. One entry per money-moving event on a booking.
const (
	EntryChargeCreated      = "charge_created"
	EntryDepositTransferred = "deposit_transferred"
	EntryEscrowReleased     = "escrow_released"
	EntryRefundIssued       = "refund_issued"
	EntryDepositReclaimed   = "deposit_reclaimed"
)

// LedgerEntry is an immutable record of one money-moving event tied to a
// booking. Entries are append-only: never updated or deleted.
type LedgerEntry struct {
	ID          uuid.UUID `json:"id"`
	BookingID   uuid.UUID `json:"booking_id"`
	EntryType   string    `json:"entry_type"`
	AmountCents int64     `json:"amount_cents"`
	ExternalRef string    `json:"external_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// SignedAmount returns the entry's contribution to the net amount the
// platform currently retains for the booking: the customer charge counts in,
// every outbound movement counts out, and a deposit reclaim counts back in.
func (e *LedgerEntry) SignedAmount() int64 {
	switch e.EntryType {
	case EntryChargeCreated, EntryDepositReclaimed:
		return e.AmountCents
	case EntryDepositTransferred, EntryEscrowReleased, EntryRefundIssued:
		return -e.AmountCents
	}
	return 0
}

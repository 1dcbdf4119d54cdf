package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorTier is the vendor's subscription level at the time a booking is
// created. The tier is snapshotted onto the booking so a later tier change
// never alters the commission of an existing booking.
type VendorTier string

const (
	TierFree     VendorTier = "free"
	TierPremium  VendorTier = "premium"
	TierFeatured VendorTier = "featured"
	TierElite    VendorTier = "elite"
)

// VendorTiers lists every valid tier, ascending by plan level.
var VendorTiers = []VendorTier{TierFree, TierPremium, TierFeatured, TierElite}

// Valid reports whether t is one of the enumerated tiers.
func (t VendorTier) Valid() bool {
	for _, v := range VendorTiers {
		if t == v {
			return true
		}
	}
	return false
}

// PaymentState is the escrow state machine value attached to a booking.
type PaymentState string

const (
	StatePending             PaymentState = "pending"
	StateDepositPendingRetry PaymentState = "deposit_pending_retry"
	StateDepositPaid         PaymentState = "deposit_paid"
	StateEscrowHeld          PaymentState = "escrow_held"
	StateReleasing           PaymentState = "releasing"
	StateRefunding           PaymentState = "refunding"
	StateReleased            PaymentState = "released"
	StateRefunded            PaymentState = "refunded"
	StatePartiallyRefunded   PaymentState = "partially_refunded"
)

// Terminal reports whether no further money-moving transition is permitted.
func (s PaymentState) Terminal() bool {
	return s == StateReleased || s == StateRefunded
}

// Booking is one customer-vendor service agreement. Bookings are never
// deleted; cancelled and refunded bookings are retained for audit.
type Booking struct {
	ID              uuid.UUID    `json:"id"`
	CustomerID      uuid.UUID    `json:"customer_id"`
	VendorID        uuid.UUID    `json:"vendor_id"`
	VendorTier      VendorTier   `json:"vendor_tier"`
	TotalCents      int64        `json:"total_cents"`
	CommissionCents int64        `json:"commission_cents"`
	DepositCents    int64        `json:"deposit_cents"`
	EscrowCents     int64        `json:"escrow_cents"` // remaining escrow, reduced by partial refunds
	RefundedCents   int64        `json:"refunded_cents"`
	Currency        string       `json:"currency"`
	State           PaymentState `json:"state"`
	ChargeRef       *string      `json:"charge_ref,omitempty"`
	CancelReason    *string      `json:"cancel_reason,omitempty"`
	EventDate       time.Time    `json:"event_date"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

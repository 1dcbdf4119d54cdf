// Package split computes how a booking payment divides into platform
// commission, immediate vendor deposit, and escrow-held balance. All stored
// values are integer minor currency units; intermediate multiplication uses
// decimal fixed-point so no cent is ever lost to float drift.
package split

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when the booking total is not positive.
var ErrInvalidAmount = errors.New("total amount must be positive")

// ErrInvalidRate is returned when the commission rate is outside [0, 1).
var ErrInvalidRate = errors.New("commission rate must be in [0,1)")

// depositFraction is the share of the vendor-net amount paid out immediately
// on charge confirmation; the remainder is held in escrow until completion.
var depositFraction = decimal.RequireFromString("0.30")

// Result is the derived split of one booking payment.
//
// Two invariants hold for every Result, by construction:
//
//	Commission + VendorNet == Total
//	Deposit + Escrow == VendorNet
type Result struct {
	TotalCents      int64 `json:"total_cents"`
	CommissionCents int64 `json:"commission_cents"`
	VendorNetCents  int64 `json:"vendor_net_cents"`
	DepositCents    int64 `json:"deposit_cents"`
	EscrowCents     int64 `json:"escrow_cents"`
}

// Compute splits totalCents at the given commission rate. Commission and
// deposit round half up; vendor net and escrow are derived by subtraction so
// the sum invariants hold exactly regardless of rounding direction.
func Compute(totalCents int64, rate decimal.Decimal) (Result, error) {
	if totalCents <= 0 {
		return Result{}, ErrInvalidAmount
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Result{}, ErrInvalidRate
	}

	total := decimal.NewFromInt(totalCents)
	commission := total.Mul(rate).Round(0).IntPart()
	vendorNet := totalCents - commission
	deposit := decimal.NewFromInt(vendorNet).Mul(depositFraction).Round(0).IntPart()
	escrow := vendorNet - deposit

	return Result{
		TotalCents:      totalCents,
		CommissionCents: commission,
		VendorNetCents:  vendorNet,
		DepositCents:    deposit,
		EscrowCents:     escrow,
	}, nil
}

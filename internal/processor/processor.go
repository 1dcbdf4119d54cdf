// Package processor defines the boundary to the external payment processor.
// Any processor offering destination-charge, transfer, reversal, and refund
// primitives with idempotency keys qualifies.
package processor

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by the lookup calls when no object matches the
// idempotency key. It means the processor never durably received the request.
var ErrNotFound = errors.New("processor: not found")

// DeclineError is a processor-side rejection of a charge (card declined,
// account blocked). No money moved; the caller surfaces it synchronously.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("processor declined: %s (%s)", e.Message, e.Code)
}

// TransferFailedError means the charge succeeded but the deposit transfer to
// the vendor's connected account did not. The charge id must be recorded so
// the transfer can be retried against it.
type TransferFailedError struct {
	ChargeID string
	Message  string
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("processor transfer failed after charge %s: %s", e.ChargeID, e.Message)
}

// AccountStanding is the result of a capability check on a connected account.
type AccountStanding string

const (
	AccountEnabled      AccountStanding = "enabled"
	AccountNotOnboarded AccountStanding = "not_onboarded"
	AccountSuspended    AccountStanding = "suspended"
)

// AccountStatus reports the raw capability flags of a connected account.
type AccountStatus struct {
	AccountID      string `json:"account_id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
	Suspended      bool   `json:"suspended"`
}

// Standing collapses the capability flags into a single result value. Money
// may only move for AccountEnabled.
func (s *AccountStatus) Standing() AccountStanding {
	switch {
	case s.Suspended:
		return AccountSuspended
	case s.ChargesEnabled && s.PayoutsEnabled:
		return AccountEnabled
	default:
		return AccountNotOnboarded
	}
}

// ChargeParams describes a destination charge: the customer is charged
// AmountCents, FeeCents is retained as the platform fee, and TransferCents is
// forwarded to the vendor's connected account, all in one processor request.
type ChargeParams struct {
	AmountCents        int64
	Currency           string
	FeeCents           int64
	DestinationAccount string
	TransferCents      int64
	IdempotencyKey     string
}

// Charge is the processor's record of a created charge. TransferID is set
// when the deposit transfer portion succeeded.
type Charge struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	TransferID  string `json:"transfer_id,omitempty"`
}

// TransferParams describes a standalone transfer to a connected account.
type TransferParams struct {
	AmountCents        int64
	Currency           string
	DestinationAccount string
	SourceChargeID     string
	IdempotencyKey     string
}

type Transfer struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
}

// ReversalParams pulls a previously transferred amount back from a connected
// account (deposit clawback on refund).
type ReversalParams struct {
	TransferID     string
	AmountCents    int64
	IdempotencyKey string
}

type Reversal struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
}

// RefundParams reverses part or all of a charge back to the customer.
// AmountCents == 0 refunds the full remaining charge.
type RefundParams struct {
	ChargeID       string
	AmountCents    int64
	IdempotencyKey string
}

type Refund struct {
	ID          string `json:"id"`
	AmountCents int64  `json:"amount_cents"`
}

// Client is the payment processor capability used by the engine. Every
// money-moving call carries a caller-supplied idempotency key; retried calls
// with the same key must not move money twice. The Find* calls reconcile
// in-doubt requests after a timeout or crash.
type Client interface {
	CreateChargeWithSplit(ctx context.Context, p ChargeParams) (*Charge, error)
	CreateTransfer(ctx context.Context, p TransferParams) (*Transfer, error)
	ReverseTransfer(ctx context.Context, p ReversalParams) (*Reversal, error)
	CreateRefund(ctx context.Context, p RefundParams) (*Refund, error)
	GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
	FindChargeByKey(ctx context.Context, idempotencyKey string) (*Charge, error)
	FindTransferByKey(ctx context.Context, idempotencyKey string) (*Transfer, error)
}

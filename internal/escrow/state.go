// Package escrow is the authoritative record of each booking's financial
// state machine. Every mutation goes through a compare-and-swap on the
// current state, so concurrent triggers for the same booking serialize to
// exactly one winner, and every money movement leaves an append-only ledger
// entry.
package escrow

import (
	"errors"

	"github.com/weddify/backend/internal/models"
)

// ErrInvalidTransition means a transition was attempted that the state
// machine never permits (e.g. released -> escrow_held). This is an invariant
// violation: the operation halts and state is left unchanged.
var ErrInvalidTransition = errors.New("invalid payment state transition")

// ErrStateConflict means the transition is legal but another writer moved
// the booking first. The loser must re-read and decide, never retry blindly.
var ErrStateConflict = errors.New("payment state changed concurrently")

// ErrBookingNotFound is returned when the booking does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// transitions enumerates every edge of the payment state machine.
// releasing and refunding are reservation states: a handler parks the booking
// there while a processor call is in flight, then finalizes or rolls back to
// the origin state.
var transitions = map[models.PaymentState][]models.PaymentState{
	models.StatePending: {
		models.StateDepositPaid,
		models.StateDepositPendingRetry,
	},
	models.StateDepositPendingRetry: {
		models.StateDepositPaid,
		models.StateRefunding,
	},
	models.StateDepositPaid: {
		models.StateEscrowHeld,
		models.StateRefunding,
	},
	models.StateEscrowHeld: {
		models.StateReleasing,
		models.StateRefunding,
	},
	models.StatePartiallyRefunded: {
		models.StateReleasing,
		models.StateRefunding,
	},
	models.StateReleasing: {
		models.StateReleased,
		models.StateEscrowHeld,       // rollback
		models.StatePartiallyRefunded, // rollback
	},
	models.StateRefunding: {
		models.StateRefunded,
		models.StatePartiallyRefunded,
		models.StateEscrowHeld,          // rollback
		models.StateDepositPaid,         // rollback
		models.StateDepositPendingRetry, // rollback
	},
	models.StateReleased: {},
	models.StateRefunded: {},
}

// Allowed reports whether the state machine permits from -> to.
func Allowed(from, to models.PaymentState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

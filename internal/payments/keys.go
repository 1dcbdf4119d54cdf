package payments

import (
	"fmt"

	"github.com/google/uuid"
)

// Idempotency keys are derived deterministically from the booking id and the
// transition kind, so a retry after timeout or crash reuses the same key and
// the processor deduplicates the money movement. No operation may depend on
// being the first attempt.

func chargeKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("bk:%s:charge", bookingID)
}

func depositKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("bk:%s:deposit", bookingID)
}

func releaseKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("bk:%s:release", bookingID)
}

// refundKey folds in the cents already refunded so each successive partial
// refund gets a fresh key while a retry of the same refund reuses it.
func refundKey(bookingID uuid.UUID, refundedSoFar int64) string {
	return fmt.Sprintf("bk:%s:refund:%d", bookingID, refundedSoFar)
}

func reclaimKey(bookingID uuid.UUID) string {
	return fmt.Sprintf("bk:%s:reclaim", bookingID)
}

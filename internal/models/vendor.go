package models

import (
	"time"

	"github.com/google/uuid"
)

// Vendor statuses.
const (
	VendorStatusActive    = "ACTIVE"
	VendorStatusSuspended = "SUSPENDED"
)

// Vendor is a service vendor's marketplace profile. ProcessorAccountID is the
// vendor's connected account at the payment processor; deposits and escrow
// releases are transferred to it.
type Vendor struct {
	ID                 uuid.UUID  `json:"id"`
	AccountID          uuid.UUID  `json:"account_id"`
	BusinessName       string     `json:"business_name"`
	Category           string     `json:"category"`
	Tier               VendorTier `json:"tier"`
	ProcessorAccountID string     `json:"processor_account_id"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

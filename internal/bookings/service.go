package bookings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weddify/backend/internal/commission"
	"github.com/weddify/backend/internal/escrow"
	"github.com/weddify/backend/internal/models"
	"github.com/weddify/backend/internal/payments"
	"github.com/weddify/backend/internal/split"
	"github.com/weddify/backend/internal/vendors"
)

// ErrNotAuthorized is returned when the actor may not perform the lifecycle
// action on this booking.
var ErrNotAuthorized = errors.New("not authorized for this booking")

// ErrVendorUnavailable is returned when booking a suspended vendor.
var ErrVendorUnavailable = errors.New("vendor is not accepting bookings")

// Actor identifies who triggered a lifecycle action.
type Actor struct {
	AccountID uuid.UUID
	Role      string
}

// BookingStore is the subset of the bookings repository the service needs.
type BookingStore interface {
	Create(ctx context.Context, p CreateParams) (*models.Booking, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Booking, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.Booking, error)
	SetCancelReason(ctx context.Context, id uuid.UUID, reason string) error
}

type Service interface {
	CreateBooking(ctx context.Context, customerID, vendorID uuid.UUID, totalCents int64, eventDate time.Time) (*models.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Booking, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.Booking, error)
	ListByVendorAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Booking, error)
	Entries(ctx context.Context, bookingID uuid.UUID) ([]*models.LedgerEntry, error)
	MarkCompleted(ctx context.Context, bookingID uuid.UUID, actor Actor) error
	Cancel(ctx context.Context, bookingID uuid.UUID, reason string, amountCents *int64, actor Actor) (*models.Booking, error)
}

type service struct {
	repo     BookingStore
	vendors  vendors.Service
	resolver *commission.Resolver
	orch     *payments.Orchestrator
	release  *payments.ReleaseHandler
	refunds  *payments.RefundHandler
	ledger   *escrow.Ledger
	currency string
	log      *slog.Logger
}

func NewService(
	repo BookingStore,
	vendorSvc vendors.Service,
	resolver *commission.Resolver,
	orch *payments.Orchestrator,
	release *payments.ReleaseHandler,
	refunds *payments.RefundHandler,
	ledger *escrow.Ledger,
	currency string,
	log *slog.Logger,
) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		repo:     repo,
		vendors:  vendorSvc,
		resolver: resolver,
		orch:     orch,
		release:  release,
		refunds:  refunds,
		ledger:   ledger,
		currency: currency,
		log:      log,
	}
}

var _ Service = (*service)(nil)

// CreateBooking snapshots the vendor's tier, computes the split, persists the
// booking, and initiates the charge. A processor rejection leaves the booking
// pending and is returned alongside it; a partial failure parks the booking
// for the reconciliation sweep.
func (s *service) CreateBooking(ctx context.Context, customerID, vendorID uuid.UUID, totalCents int64, eventDate time.Time) (*models.Booking, error) {
	vendor, err := s.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if vendor.Status != models.VendorStatusActive {
		return nil, ErrVendorUnavailable
	}

	rate := s.resolver.RateFor(vendor.Tier)
	sp, err := split.Compute(totalCents, rate)
	if err != nil {
		return nil, err
	}

	b, err := s.repo.Create(ctx, CreateParams{
		CustomerID:      customerID,
		VendorID:        vendorID,
		VendorTier:      vendor.Tier,
		TotalCents:      sp.TotalCents,
		CommissionCents: sp.CommissionCents,
		DepositCents:    sp.DepositCents,
		EscrowCents:     sp.EscrowCents,
		Currency:        s.currency,
		EventDate:       eventDate,
	})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	if _, err := s.orch.CreateBookingPayment(ctx, b, vendor, sp); err != nil {
		// The booking exists either way; the caller needs both it and
		// the payment outcome.
		updated, getErr := s.ledger.Get(ctx, b.ID)
		if getErr == nil {
			b = updated
		}
		return b, err
	}

	return s.ledger.Get(ctx, b.ID)
}

func (s *service) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.ledger.Get(ctx, id)
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Booking, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.Booking, error) {
	return s.repo.ListByVendor(ctx, vendorID)
}

// ListByVendorAccount resolves the vendor profile owned by the account and
// lists its bookings.
func (s *service) ListByVendorAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Booking, error) {
	vendor, err := s.vendors.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByVendor(ctx, vendor.ID)
}

func (s *service) Entries(ctx context.Context, bookingID uuid.UUID) ([]*models.LedgerEntry, error) {
	return s.ledger.Entries(ctx, bookingID)
}

// MarkCompleted is the external "service was rendered" signal. Only the
// booked vendor or an admin may send it; the engine then releases the held
// escrow to the vendor.
func (s *service) MarkCompleted(ctx context.Context, bookingID uuid.UUID, actor Actor) error {
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := s.authorizeVendorOrAdmin(ctx, b, actor); err != nil {
		return err
	}
	return s.release.Release(ctx, bookingID)
}

// Cancel is the cancellation signal. A pending booking was never charged, so
// only the reason is recorded; otherwise the refund handler reverses the
// charge (fully, or partially when amountCents is set).
func (s *service) Cancel(ctx context.Context, bookingID uuid.UUID, reason string, amountCents *int64, actor Actor) (*models.Booking, error) {
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, b, actor); err != nil {
		return nil, err
	}

	if err := s.repo.SetCancelReason(ctx, bookingID, reason); err != nil {
		return nil, fmt.Errorf("record cancel reason: %w", err)
	}

	if b.State == models.StatePending {
		s.log.Info("cancelled pending booking, no charge to refund", "booking_id", bookingID)
		return s.ledger.Get(ctx, bookingID)
	}

	if _, err := s.refunds.Refund(ctx, bookingID, amountCents); err != nil {
		return nil, err
	}
	return s.ledger.Get(ctx, bookingID)
}

func (s *service) authorizeVendorOrAdmin(ctx context.Context, b *models.Booking, actor Actor) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleVendor:
		vendor, err := s.vendors.GetByAccountID(ctx, actor.AccountID)
		if err != nil {
			return ErrNotAuthorized
		}
		if vendor.ID != b.VendorID {
			return ErrNotAuthorized
		}
		return nil
	}
	return ErrNotAuthorized
}

func (s *service) authorizeParticipant(ctx context.Context, b *models.Booking, actor Actor) error {
	if actor.Role == models.RoleCustomer {
		if b.CustomerID != actor.AccountID {
			return ErrNotAuthorized
		}
		return nil
	}
	return s.authorizeVendorOrAdmin(ctx, b, actor)
}

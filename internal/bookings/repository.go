package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weddify/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type CreateParams struct {
	CustomerID      uuid.UUID
	VendorID        uuid.UUID
	VendorTier      models.VendorTier
	TotalCents      int64
	CommissionCents int64
	DepositCents    int64
	EscrowCents     int64
	Currency        string
	EventDate       time.Time
}

// Create inserts a booking in the pending state with the split snapshotted
// at creation time.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Booking, error) {
	var b models.Booking
	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (
			customer_id, vendor_id, vendor_tier, total_cents, commission_cents,
			deposit_cents, escrow_cents, refunded_cents, currency, state, event_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, 'pending', $9)
		RETURNING id, customer_id, vendor_id, vendor_tier, total_cents, commission_cents,
			deposit_cents, escrow_cents, refunded_cents, currency, state, charge_ref,
			cancel_reason, event_date, created_at, updated_at
	`, p.CustomerID, p.VendorID, p.VendorTier, p.TotalCents, p.CommissionCents,
		p.DepositCents, p.EscrowCents, p.Currency, p.EventDate)
	err := row.Scan(&b.ID, &b.CustomerID, &b.VendorID, &b.VendorTier, &b.TotalCents,
		&b.CommissionCents, &b.DepositCents, &b.EscrowCents, &b.RefundedCents,
		&b.Currency, &b.State, &b.ChargeRef, &b.CancelReason, &b.EventDate,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Booking, error) {
	return r.list(ctx, `customer_id = $1`, customerID)
}

func (r *Repository) ListByVendor(ctx context.Context, vendorID uuid.UUID) ([]*models.Booking, error) {
	return r.list(ctx, `vendor_id = $1`, vendorID)
}

func (r *Repository) list(ctx context.Context, where string, arg any) ([]*models.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, vendor_id, vendor_tier, total_cents, commission_cents,
			deposit_cents, escrow_cents, refunded_cents, currency, state, charge_ref,
			cancel_reason, event_date, created_at, updated_at
		FROM bookings WHERE `+where+` ORDER BY created_at DESC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		var b models.Booking
		err := rows.Scan(&b.ID, &b.CustomerID, &b.VendorID, &b.VendorTier, &b.TotalCents,
			&b.CommissionCents, &b.DepositCents, &b.EscrowCents, &b.RefundedCents,
			&b.Currency, &b.State, &b.ChargeRef, &b.CancelReason, &b.EventDate,
			&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, err
		}
		list = append(list, &b)
	}
	return list, rows.Err()
}

func (r *Repository) SetCancelReason(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings SET cancel_reason = $1, updated_at = now() WHERE id = $2
	`, reason, id)
	return err
}

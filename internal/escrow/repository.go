package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weddify/backend/internal/models"
)

// Repository is the Postgres-backed Store. State swaps are conditional
// UPDATEs keyed on the current state, so the row itself is the lock.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const bookingColumns = `
	id, customer_id, vendor_id, vendor_tier, total_cents, commission_cents,
	deposit_cents, escrow_cents, refunded_cents, currency, state, charge_ref,
	cancel_reason, event_date, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.CustomerID, &b.VendorID, &b.VendorTier, &b.TotalCents,
		&b.CommissionCents, &b.DepositCents, &b.EscrowCents, &b.RefundedCents,
		&b.Currency, &b.State, &b.ChargeRef, &b.CancelReason, &b.EventDate,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// TransitionState performs the compare-and-swap. Zero rows affected means
// another writer got there first (or the booking does not exist).
func (r *Repository) TransitionState(ctx context.Context, id uuid.UUID, from, to models.PaymentState) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE bookings SET state = $1, updated_at = now()
		WHERE id = $2 AND state = $3
	`, to, id, from)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

func (r *Repository) SetChargeRef(ctx context.Context, id uuid.UUID, chargeRef string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings SET charge_ref = $1, updated_at = now() WHERE id = $2
	`, chargeRef, id)
	return err
}

func (r *Repository) ApplyRefund(ctx context.Context, id uuid.UUID, refundedDelta, escrowDelta int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET refunded_cents = refunded_cents + $1,
		    escrow_cents = escrow_cents - $2,
		    updated_at = now()
		WHERE id = $3
	`, refundedDelta, escrowDelta, id)
	return err
}

// AppendEntry inserts into ledger_entries. The table is append-only; nothing
// in this repository updates or deletes a ledger row.
func (r *Repository) AppendEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ledger_entries (id, booking_id, entry_type, amount_cents, external_ref)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.BookingID, e.EntryType, e.AmountCents, e.ExternalRef)
	return err
}

func (r *Repository) ListEntries(ctx context.Context, bookingID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, booking_id, entry_type, amount_cents, external_ref, created_at
		FROM ledger_entries WHERE booking_id = $1 ORDER BY created_at ASC
	`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.EntryType, &e.AmountCents, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

func (r *Repository) ListInState(ctx context.Context, states []models.PaymentState, updatedBefore time.Time) ([]*models.Booking, error) {
	strs := make([]string, len(states))
	for i, s := range states {
		strs[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings WHERE state = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
	`, strs, updatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

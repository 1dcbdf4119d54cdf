package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weddify/backend/internal/models"
)

// ErrVendorNotFound is returned when no vendor matches the lookup.
var ErrVendorNotFound = errors.New("vendor not found")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type CreateParams struct {
	AccountID          uuid.UUID
	BusinessName       string
	Category           string
	Tier               models.VendorTier
	ProcessorAccountID string
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (*models.Vendor, error) {
	var v models.Vendor
	row := r.pool.QueryRow(ctx, `
		INSERT INTO vendors (account_id, business_name, category, tier, processor_account_id, status)
		VALUES ($1, $2, $3, $4, $5, 'ACTIVE')
		RETURNING id, account_id, business_name, category, tier, processor_account_id, status, created_at, updated_at
	`, p.AccountID, p.BusinessName, p.Category, p.Tier, p.ProcessorAccountID)
	return scanVendor(row, &v)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var v models.Vendor
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, business_name, category, tier, processor_account_id, status, created_at, updated_at
		FROM vendors WHERE id = $1
	`, id)
	return scanVendor(row, &v)
}

func (r *Repository) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Vendor, error) {
	var v models.Vendor
	row := r.pool.QueryRow(ctx, `
		SELECT id, account_id, business_name, category, tier, processor_account_id, status, created_at, updated_at
		FROM vendors WHERE account_id = $1
	`, accountID)
	return scanVendor(row, &v)
}

func (r *Repository) ListActive(ctx context.Context) ([]*models.Vendor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, business_name, category, tier, processor_account_id, status, created_at, updated_at
		FROM vendors WHERE status = 'ACTIVE' ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Vendor
	for rows.Next() {
		var v models.Vendor
		if _, err := scanVendor(rows, &v); err != nil {
			return nil, err
		}
		list = append(list, &v)
	}
	return list, rows.Err()
}

// UpdateTier changes a vendor's subscription tier. Existing bookings keep the
// tier snapshotted at creation time.
func (r *Repository) UpdateTier(ctx context.Context, id uuid.UUID, tier models.VendorTier) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE vendors SET tier = $1, updated_at = now() WHERE id = $2
	`, tier, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrVendorNotFound
	}
	return nil
}

func scanVendor(row pgx.Row, v *models.Vendor) (*models.Vendor, error) {
	err := row.Scan(&v.ID, &v.AccountID, &v.BusinessName, &v.Category, &v.Tier,
		&v.ProcessorAccountID, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVendorNotFound
		}
		return nil, err
	}
	return v, nil
}

package vendors

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/weddify/backend/internal/models"
)

// ErrInvalidTier is returned when creating or updating a vendor with a tier
// outside the enum.
var ErrInvalidTier = errors.New("invalid vendor tier")

type Service interface {
	CreateVendor(ctx context.Context, p CreateParams) (*models.Vendor, error)
	GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Vendor, error)
	ListActive(ctx context.Context) ([]*models.Vendor, error)
	ChangeTier(ctx context.Context, id uuid.UUID, tier models.VendorTier) error
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) CreateVendor(ctx context.Context, p CreateParams) (*models.Vendor, error) {
	if !p.Tier.Valid() {
		return nil, ErrInvalidTier
	}
	return s.repo.Create(ctx, p)
}

func (s *service) GetVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Vendor, error) {
	return s.repo.GetByAccountID(ctx, accountID)
}

func (s *service) ListActive(ctx context.Context) ([]*models.Vendor, error) {
	return s.repo.ListActive(ctx)
}

func (s *service) ChangeTier(ctx context.Context, id uuid.UUID, tier models.VendorTier) error {
	if !tier.Valid() {
		return ErrInvalidTier
	}
	return s.repo.UpdateTier(ctx, id, tier)
}

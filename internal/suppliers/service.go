package suppliers

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/clinicstock/internal/shared"
)

// Repository abstracts supplier persistence.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, id int64, supplier Supplier) error
	Delete(ctx context.Context, id int64) error
}

// Service exposes supplier master data operations.
type Service struct {
	repo Repository
}

// NewService constructs the supplier service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns a filtered page of suppliers and the total match count.
func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Limit > 100 {
		filters.Limit = 100
	}
	return s.repo.List(ctx, filters)
}

// Get fetches a supplier by id.
func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, fmt.Errorf("%w: invalid supplier id", ErrInvalidInput)
	}
	return s.repo.Get(ctx, id)
}

// Create stores a new supplier.
func (s *Service) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	supplier = normalise(supplier)
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Create(ctx, supplier)
}

// Update replaces the supplier's descriptive fields.
func (s *Service) Update(ctx context.Context, id int64, supplier Supplier) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, fmt.Errorf("%w: invalid supplier id", ErrInvalidInput)
	}
	supplier = normalise(supplier)
	if err := s.validate(supplier); err != nil {
		return Supplier{}, err
	}
	if err := s.repo.Update(ctx, id, supplier); err != nil {
		return Supplier{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a supplier that is no longer referenced.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid supplier id", ErrInvalidInput)
	}
	return s.repo.Delete(ctx, id)
}

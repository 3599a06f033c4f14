package product

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Sentinel errors for the product module.
var (
	ErrNotFound     = errors.New("product: not found")
	ErrNameRequired = errors.New("product: name required")
	ErrInvalidPrice = errors.New("product: price must not be negative")
	ErrInUse        = errors.New("product: referenced by existing leads")
)

// RepositoryPort defines data access methods for products.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, input ProductInput) (*Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// Service handles product business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validateInput(input *ProductInput) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return ErrNameRequired
	}
	if input.Price.LessThan(decimal.Zero) {
		return ErrInvalidPrice
	}
	return nil
}

// CreateProduct registers a new product.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	return s.repo.CreateProduct(ctx, input)
}

// GetProduct returns one product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListProducts returns all products ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// UpdateProduct edits name, description and price. Price changes only affect
// leads not yet folded into a report; reported leads keep the revenue the
// report recorded.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error) {
	if err := validateInput(&input); err != nil {
		return nil, err
	}
	p, err := s.repo.UpdateProduct(ctx, id, input)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// DeleteProduct removes a product unless leads reference it.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

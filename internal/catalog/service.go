package catalog

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"strings"
)

// Service implements single-product catalog management. Stock levels are
// seeded on creation and afterwards belong to the inventory ledger.
type Service struct {
	store  Store
	refs   References
	logger *zap.Logger
}

// References reports whether any order still points at a product.
type References interface {
	ReferencesProduct(ctx context.Context, productID string) (bool, error)
}

// NewService builds the catalog service. refs may be nil, in which case only
// the store guards deletes.
func NewService(store Store, refs References, logger *zap.Logger) *Service {
	return &Service{store: store, refs: refs, logger: logger}
}

func validatePrice(p decimal.Decimal) error {
	switch {
	case !p.IsPositive():
		return apperr.Validation("price must be positive")
	case !p.Equal(p.Round(2)):
		return apperr.Validation("price %s has more than 2 decimal places", p)
	case p.GreaterThanOrEqual(MaxPrice):
		return apperr.Validation("price must be below %s", MaxPrice)
	}
	return nil
}

type NewProduct struct {
	Name         string
	Description  string
	Price        decimal.Decimal
	Availability int
}

func (s *Service) Create(ctx context.Context, in NewProduct) (Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Product{}, apperr.Validation("product name is required")
	}
	if err := validatePrice(in.Price); err != nil {
		return Product{}, err
	}
	if in.Availability < 0 || in.Availability > MaxAvailability {
		return Product{}, apperr.Validation("availability must be between 0 and %d", MaxAvailability)
	}
	p, err := s.store.Create(ctx, Product{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Description:  in.Description,
		Price:        in.Price,
		Availability: in.Availability,
	})
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.store.List(ctx)
}

// ListAvailable returns the products that still have stock.
func (s *Service) ListAvailable(ctx context.Context) ([]Product, error) {
	return s.store.ListAvailable(ctx)
}

func (s *Service) Update(ctx context.Context, id string, ch Changes) (Product, error) {
	if ch.Name != nil {
		n := strings.TrimSpace(*ch.Name)
		if n == "" {
			return Product{}, apperr.Validation("product name cannot be empty")
		}
		ch.Name = &n
	}
	if ch.Price != nil {
		if err := validatePrice(*ch.Price); err != nil {
			return Product{}, err
		}
	}
	p, err := s.store.Update(ctx, id, ch)
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("product updated", zap.String("product_id", id))
	return p, nil
}

// Delete removes a product no order refers to. Referenced products are kept
// so canceling those orders can still restore their stock.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.refs != nil {
		used, err := s.refs.ReferencesProduct(ctx, id)
		if err != nil {
			return fmt.Errorf("check product references: %w", err)
		}
		if used {
			return apperr.New(apperr.ErrConflict, "product %s is referenced by orders and cannot be deleted", id)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

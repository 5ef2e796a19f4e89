// Package inventory owns product availability. Nothing else in the service
// changes a product's stock count.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/metrics"
	"go.uber.org/zap"
)

type Ledger struct {
	store  catalog.Store
	logger *zap.Logger
}

func NewLedger(store catalog.Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// CheckAndReserve takes qty units of a product if that many remain. It
// returns false, leaving stock untouched, when they do not.
func (l *Ledger) CheckAndReserve(ctx context.Context, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, apperr.Validation("quantity must be positive, got %d", qty)
	}
	p, ok, err := l.store.DecrementIfAvailable(ctx, productID, qty)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.ReservationFailures.Inc()
		l.logger.Info("reservation refused",
			zap.String("product_id", productID),
			zap.Int("available", p.Availability),
			zap.Int("requested", qty),
		)
		return false, nil
	}
	return true, nil
}

// ReserveAll reserves every line item or none of them.
func (l *Ledger) ReserveAll(ctx context.Context, items []catalog.ItemQty) error {
	for _, it := range items {
		if it.Qty <= 0 {
			return apperr.Validation("quantity must be positive, got %d", it.Qty)
		}
	}
	err := l.store.ReserveAll(ctx, items)
	if errors.Is(err, apperr.ErrInsufficientStock) {
		metrics.ReservationFailures.Inc()
	}
	return err
}

// Restore puts qty units back on a product.
func (l *Ledger) Restore(ctx context.Context, productID string, qty int) (catalog.Product, error) {
	if qty <= 0 {
		return catalog.Product{}, apperr.Validation("quantity must be positive, got %d", qty)
	}
	return l.store.Increment(ctx, productID, qty)
}

// RestoreAll restores each item in turn, carrying on past failures. The
// returned error joins every failure.
func (l *Ledger) RestoreAll(ctx context.Context, items []catalog.ItemQty) error {
	var errs []error
	for _, it := range items {
		if _, err := l.Restore(ctx, it.ProductID, it.Qty); err != nil {
			metrics.RestoreFailures.Inc()
			l.logger.Error("stock restore failed",
				zap.String("product_id", it.ProductID),
				zap.Int("qty", it.Qty),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("restore %s x%d: %w", it.ProductID, it.Qty, err))
		}
	}
	return errors.Join(errs...)
}

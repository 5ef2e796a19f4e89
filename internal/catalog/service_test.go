package catalog

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
	"testing"
)

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, zaptest.NewLogger(t))
	ctx := context.Background()

	cases := []struct {
		name string
		in   NewProduct
	}{
		{"blank name", NewProduct{Name: "  ", Price: decimal.NewFromInt(1)}},
		{"zero price", NewProduct{Name: "Lamp", Price: decimal.Zero}},
		{"negative price", NewProduct{Name: "Lamp", Price: decimal.NewFromInt(-3)}},
		{"negative stock", NewProduct{Name: "Lamp", Price: decimal.NewFromInt(1), Availability: -1}},
		{"sub-cent price", NewProduct{Name: "Lamp", Price: decimal.RequireFromString("0.001")}},
		{"price too large", NewProduct{Name: "Lamp", Price: decimal.RequireFromString("10000000000")}},
		{"stock too large", NewProduct{Name: "Lamp", Price: decimal.NewFromInt(1), Availability: MaxAvailability + 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.in); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestService_CreateUpdateDelete(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil, zaptest.NewLogger(t))
	ctx := context.Background()

	p, err := svc.Create(ctx, NewProduct{Name: " Lamp ", Description: "desk lamp", Price: decimal.RequireFromString("19.90"), Availability: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" || p.Name != "Lamp" {
		t.Fatalf("unexpected product %+v", p)
	}

	price := decimal.RequireFromString("24.50")
	got, err := svc.Update(ctx, p.ID, Changes{Price: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.Price.Equal(price) || got.Availability != 10 {
		t.Fatalf("unexpected update result %+v", got)
	}

	zero := decimal.Zero
	if _, err := svc.Update(ctx, p.ID, Changes{Price: &zero}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

type staticRefs map[string]bool

func (r staticRefs) ReferencesProduct(_ context.Context, id string) (bool, error) {
	return r[id], nil
}

func TestService_DeleteReferencedProduct(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	p, err := store.Create(ctx, Product{ID: "p1", Name: "Lamp", Price: decimal.NewFromInt(3), Availability: 2})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := NewService(store, staticRefs{"p1": true}, zaptest.NewLogger(t))

	if err := svc.Delete(ctx, p.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); err != nil {
		t.Fatalf("referenced product must survive, got %v", err)
	}
}

package catalog

import (
	"context"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps products in process memory. Each operation holds the
// lock for its whole duration, so stock changes are atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]Product)}
}

func (s *MemoryStore) nameTaken(name, exceptID string) bool {
	for id, p := range s.products {
		if id != exceptID && p.Name == name {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Create(ctx context.Context, p Product) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(p.Name, "") {
		return Product{}, apperr.New(apperr.ErrConflict, "product name %q already exists", p.Name)
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, apperr.NotFound("product %s not found", id)
	}
	return p, nil
}

func (s *MemoryStore) list(keep func(Product) bool) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *MemoryStore) List(ctx context.Context) ([]Product, error) {
	return s.list(func(Product) bool { return true }), nil
}

func (s *MemoryStore) ListAvailable(ctx context.Context) ([]Product, error) {
	return s.list(func(p Product) bool { return p.Availability != 0 }), nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, ch Changes) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, apperr.NotFound("product %s not found", id)
	}
	if ch.Name != nil {
		if s.nameTaken(*ch.Name, id) {
			return Product{}, apperr.New(apperr.ErrConflict, "product name %q already exists", *ch.Name)
		}
		p.Name = *ch.Name
	}
	if ch.Description != nil {
		p.Description = *ch.Description
	}
	if ch.Price != nil {
		p.Price = *ch.Price
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return p, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return apperr.NotFound("product %s not found", id)
	}
	delete(s.products, id)
	return nil
}

func (s *MemoryStore) DecrementIfAvailable(ctx context.Context, id string, qty int) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, false, apperr.NotFound("product %s not found", id)
	}
	if p.Availability < qty {
		return p, false, nil
	}
	p.Availability -= qty
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return p, true, nil
}

func (s *MemoryStore) ReserveAll(ctx context.Context, items []ItemQty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := make(map[string]int, len(items))
	for _, it := range items {
		p, ok := s.products[it.ProductID]
		if !ok {
			return apperr.NotFound("product %s not found", it.ProductID)
		}
		avail, seen := remaining[it.ProductID]
		if !seen {
			avail = p.Availability
		}
		if avail < it.Qty {
			return &apperr.StockError{ProductID: p.ID, ProductName: p.Name, Available: avail, Requested: it.Qty}
		}
		remaining[it.ProductID] = avail - it.Qty
	}

	now := time.Now().UTC()
	for id, avail := range remaining {
		p := s.products[id]
		p.Availability = avail
		p.UpdatedAt = now
		s.products[id] = p
	}
	return nil
}

func (s *MemoryStore) Increment(ctx context.Context, id string, qty int) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, apperr.NotFound("product %s not found", id)
	}
	if qty > MaxAvailability-p.Availability {
		return Product{}, apperr.Validation("availability of product %s cannot exceed %d", id, MaxAvailability)
	}
	p.Availability += qty
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	return p, nil
}

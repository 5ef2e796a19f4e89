package orders

import (
	"context"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"sort"
	"sync"
	"time"
)

type memOrder struct {
	seq   int
	order Order
}

type MemoryStore struct {
	mu     sync.RWMutex
	seq    int
	orders map[string]memOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]memOrder)}
}

func clone(o Order) Order {
	o.Products = append([]ProductRef(nil), o.Products...)
	o.Quantity = append([]int(nil), o.Quantity...)
	if o.EndDate != nil {
		t := *o.EndDate
		o.EndDate = &t
	}
	return o
}

func (s *MemoryStore) Create(ctx context.Context, o Order) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return Order{}, apperr.New(apperr.ErrConflict, "order %s already exists", o.ID)
	}
	s.seq++
	s.orders[o.ID] = memOrder{seq: s.seq, order: clone(o)}
	return clone(o), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.orders[id]
	if !ok {
		return Order{}, apperr.NotFound("Order not found")
	}
	return clone(m.order), nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mine := make([]memOrder, 0)
	for _, m := range s.orders {
		if m.order.User.ID == userID {
			mine = append(mine, m)
		}
	}
	sort.Slice(mine, func(i, j int) bool {
		a, b := mine[i], mine[j]
		if !a.order.IssueDate.Equal(b.order.IssueDate) {
			return a.order.IssueDate.After(b.order.IssueDate)
		}
		return a.seq > b.seq
	})

	out := []Order{}
	start := (page - 1) * limit
	if start >= len(mine) {
		return out, nil
	}
	end := min(start+limit, len(mine))
	for _, m := range mine[start:end] {
		out = append(out, clone(m.order))
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to Status, endDate *time.Time) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.orders[id]
	if !ok {
		return Order{}, apperr.NotFound("Order not found")
	}
	if m.order.Status != from {
		return Order{}, apperr.InvalidTransition("order status changed to %q in the meantime", m.order.Status)
	}
	m.order.Status = to
	m.order.EndDate = endDate
	m.order = clone(m.order)
	s.orders[id] = m
	return clone(m.order), nil
}

func (s *MemoryStore) ReferencesProduct(ctx context.Context, productID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.orders {
		for _, ref := range m.order.Products {
			if ref.ID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

package orders

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
	"math"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Envelope
	err    error
}

func (r *recordingSink) Publish(_ context.Context, ev Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

type fixture struct {
	svc      *Service
	products *catalog.MemoryStore
	orders   *MemoryStore
	sink     *recordingSink
}

func newFixture(t *testing.T, stock map[string]int) *fixture {
	t.Helper()
	ctx := context.Background()
	products := catalog.NewMemoryStore()
	for id, n := range stock {
		if _, err := products.Create(ctx, catalog.Product{ID: id, Name: "product " + id, Price: decimal.NewFromInt(5), Availability: n}); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	logger := zaptest.NewLogger(t)
	store := NewMemoryStore()
	sink := &recordingSink{}
	svc := NewService(store, inventory.NewLedger(products, logger), products, sink, logger, "test")
	return &fixture{svc: svc, products: products, orders: store, sink: sink}
}

func (f *fixture) availability(t *testing.T, id string) int {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return p.Availability
}

func TestCreateOrder_ReservesStock(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 10, "b": 5})
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "u-1", []string{"a", "b"}, []int{3, 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != StatusValidating || o.EndDate != nil || o.IssueDate.IsZero() {
		t.Fatalf("unexpected order %+v", o)
	}
	if o.User.ID != "u-1" || len(o.Products) != 2 || o.Products[1].Name != "product b" {
		t.Fatalf("unexpected refs %+v", o)
	}
	if f.availability(t, "a") != 7 || f.availability(t, "b") != 0 {
		t.Fatalf("stock not decremented: a=%d b=%d", f.availability(t, "a"), f.availability(t, "b"))
	}
	if got := f.sink.types(); len(got) != 1 || got[0] != EventOrderCreated {
		t.Fatalf("expected one OrderCreated event, got %v", got)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 10})
	ctx := context.Background()

	cases := []struct {
		name string
		ids  []string
		qty  []int
	}{
		{"no products", nil, nil},
		{"count mismatch", []string{"a"}, []int{1, 2}},
		{"zero quantity", []string{"a"}, []int{0}},
		{"negative quantity", []string{"a"}, []int{-4}},
		{"empty id", []string{""}, []int{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateOrder(ctx, "u-1", tc.ids, tc.qty); !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if f.availability(t, "a") != 10 {
		t.Fatal("validation failures must not touch stock")
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10})

	_, err := f.svc.CreateOrder(context.Background(), "u-1", []string{"p"}, []int{15})
	var se *apperr.StockError
	if !errors.As(err, &se) {
		t.Fatalf("expected *apperr.StockError, got %v", err)
	}
	if se.Available != 10 || se.Requested != 15 || se.ProductName != "product p" {
		t.Errorf("unexpected stock error %+v", se)
	}
	if f.availability(t, "p") != 10 {
		t.Fatalf("expected availability 10, got %d", f.availability(t, "p"))
	}
	if len(f.sink.types()) != 0 {
		t.Fatal("no event expected for a refused order")
	}
}

func TestCreateOrder_AllOrNothing(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 10, "b": 2})

	_, err := f.svc.CreateOrder(context.Background(), "u-1", []string{"a", "b"}, []int{4, 3})
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if f.availability(t, "a") != 10 {
		t.Fatalf("earlier line item must not stay reserved, a=%d", f.availability(t, "a"))
	}
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 10})

	_, err := f.svc.CreateOrder(context.Background(), "u-1", []string{"a", "ghost"}, []int{1, 1})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.availability(t, "a") != 10 {
		t.Fatal("stock must be untouched")
	}
}

type failingCreateStore struct{ *MemoryStore }

func (failingCreateStore) Create(context.Context, Order) (Order, error) {
	return Order{}, errors.New("connection reset")
}

func TestCreateOrder_PersistFailureReleasesStock(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 10})
	logger := zaptest.NewLogger(t)
	svc := NewService(failingCreateStore{NewMemoryStore()}, inventory.NewLedger(f.products, logger), f.products, nil, logger, "test")

	_, err := svc.CreateOrder(context.Background(), "u-1", []string{"a"}, []int{4})
	if err == nil || apperr.StatusCode(err) != 500 {
		t.Fatalf("expected an internal error, got %v", err)
	}
	if f.availability(t, "a") != 10 {
		t.Fatalf("reservation must be released, a=%d", f.availability(t, "a"))
	}
}

// ctxLedger fails like a networked store once the caller's context is done.
type ctxLedger struct{ *inventory.Ledger }

func (l ctxLedger) ReserveAll(ctx context.Context, items []catalog.ItemQty) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.Ledger.ReserveAll(ctx, items)
}

func (l ctxLedger) RestoreAll(ctx context.Context, items []catalog.ItemQty) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.Ledger.RestoreAll(ctx, items)
}

// disconnectingStore simulates the client going away mid-request.
type disconnectingStore struct {
	*MemoryStore
	cancel context.CancelFunc
}

func (s disconnectingStore) Create(ctx context.Context, _ Order) (Order, error) {
	s.cancel()
	return Order{}, ctx.Err()
}

func (s disconnectingStore) UpdateStatus(ctx context.Context, id string, from, to Status, endDate *time.Time) (Order, error) {
	o, err := s.MemoryStore.UpdateStatus(ctx, id, from, to, endDate)
	s.cancel()
	return o, err
}

func TestCreateOrder_CanceledRequestStillReleasesStock(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 10})
	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := disconnectingStore{MemoryStore: NewMemoryStore(), cancel: cancel}
	svc := NewService(store, ctxLedger{inventory.NewLedger(f.products, logger)}, f.products, nil, logger, "test")

	if _, err := svc.CreateOrder(ctx, "u-1", []string{"a"}, []int{4}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.availability(t, "a") != 10 {
		t.Fatalf("reservation must be released after the request is canceled, a=%d", f.availability(t, "a"))
	}
}

func TestCancelOrder_CanceledRequestStillRestoresStock(t *testing.T) {
	f := newFixture(t, map[string]int{"a": 10})
	logger := zaptest.NewLogger(t)
	o, err := f.svc.CreateOrder(context.Background(), "u-1", []string{"a"}, []int{4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := disconnectingStore{MemoryStore: f.orders, cancel: cancel}
	svc := NewService(store, ctxLedger{inventory.NewLedger(f.products, logger)}, f.products, nil, logger, "test")

	got, err := svc.CancelOrder(ctx, o.ID, "u-1")
	if err != nil || got.Status != StatusCanceled {
		t.Fatalf("cancel: %+v, %v", got, err)
	}
	if f.availability(t, "a") != 10 {
		t.Fatalf("stock must be restored after the request is canceled, a=%d", f.availability(t, "a"))
	}
}

func TestLifecycle_AdvanceToReceived(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10})
	ctx := context.Background()
	fixed := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	o, err := f.svc.CreateOrder(ctx, "u-1", []string{"p"}, []int{3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.availability(t, "p") != 7 {
		t.Fatalf("expected 7, got %d", f.availability(t, "p"))
	}

	o, err = f.svc.UpdateOrderStatus(ctx, o.ID, "u-1")
	if err != nil || o.Status != StatusSent || o.EndDate != nil {
		t.Fatalf("first advance: %+v, %v", o, err)
	}
	o, err = f.svc.UpdateOrderStatus(ctx, o.ID, "u-1")
	if err != nil || o.Status != StatusReceived {
		t.Fatalf("second advance: %+v, %v", o, err)
	}
	if o.EndDate == nil || !o.EndDate.Equal(fixed) {
		t.Fatalf("expected end date %v, got %v", fixed, o.EndDate)
	}
	if _, err := f.svc.UpdateOrderStatus(ctx, o.ID, "u-1"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("third advance: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, o.ID, "u-1"); !errors.Is(err, apperr.ErrAlreadyCompleted) {
		t.Fatalf("cancel received: expected ErrAlreadyCompleted, got %v", err)
	}
	if f.availability(t, "p") != 7 {
		t.Fatal("completed order keeps its stock")
	}

	want := []string{EventOrderCreated, EventOrderStatusChanged, EventOrderStatusChanged}
	got := f.sink.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10, "q": 4})
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "u-1", []string{"p", "q", "p"}, []int{3, 4, 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.availability(t, "p") != 5 || f.availability(t, "q") != 0 {
		t.Fatal("unexpected stock after create")
	}
	if o, err = f.svc.UpdateOrderStatus(ctx, o.ID, "u-1"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	o, err = f.svc.CancelOrder(ctx, o.ID, "u-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != StatusCanceled || o.EndDate == nil {
		t.Fatalf("unexpected canceled order %+v", o)
	}
	if f.availability(t, "p") != 10 || f.availability(t, "q") != 4 {
		t.Fatalf("stock not restored: p=%d q=%d", f.availability(t, "p"), f.availability(t, "q"))
	}
}

func TestCancelOrder_TwiceDoesNotRestoreTwice(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10})
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "u-1", []string{"p"}, []int{3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, o.ID, "u-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.availability(t, "p") != 10 {
		t.Fatalf("expected 10, got %d", f.availability(t, "p"))
	}

	_, err = f.svc.CancelOrder(ctx, o.ID, "u-1")
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if errors.Is(err, apperr.ErrAlreadyCompleted) {
		t.Fatal("a canceled order is not reported as completed")
	}
	if f.availability(t, "p") != 10 {
		t.Fatalf("second cancel restored stock again: %d", f.availability(t, "p"))
	}
	if _, err := f.svc.UpdateOrderStatus(ctx, o.ID, "u-1"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("advance canceled: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelOrder_ConcurrentRestoresOnce(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10})
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "u-1", []string{"p"}, []int{6})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CancelOrder(ctx, o.ID, "u-1"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful cancel, got %d", succeeded)
	}
	if f.availability(t, "p") != 10 {
		t.Fatalf("expected 10, got %d", f.availability(t, "p"))
	}
}

func TestCancelOrder_RestoreFailureStillCancels(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10, "q": 10})
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "u-1", []string{"p", "q"}, []int{2, 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// product removed from the catalog while the order was open
	if err := f.products.Delete(ctx, "p"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	o, err = f.svc.CancelOrder(ctx, o.ID, "u-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != StatusCanceled {
		t.Fatalf("expected canceled, got %q", o.Status)
	}
	if f.availability(t, "q") != 10 {
		t.Fatalf("remaining items must be restored, q=%d", f.availability(t, "q"))
	}
}

func TestOwnershipAndNotFound(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10})
	ctx := context.Background()

	o, err := f.svc.CreateOrder(ctx, "owner", []string{"p"}, []int{1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.UpdateOrderStatus(ctx, o.ID, "intruder"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("advance: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, o.ID, "intruder"); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("cancel: expected ErrUnauthorized, got %v", err)
	}
	if f.availability(t, "p") != 9 {
		t.Error("rejected cancel must not restore")
	}
	if _, err := f.svc.UpdateOrderStatus(ctx, "missing", "owner"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("advance missing: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.CancelOrder(ctx, "missing", "owner"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cancel missing: expected ErrNotFound, got %v", err)
	}
}

func TestGetOrdersByUser_Pagination(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 100})
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 12; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		f.svc.now = func() time.Time { return at }
		o, err := f.svc.CreateOrder(ctx, "u-1", []string{"p"}, []int{1})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, o.ID)
	}
	if _, err := f.svc.CreateOrder(ctx, "u-2", []string{"p"}, []int{1}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	first, err := f.svc.GetOrdersByUser(ctx, "u-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != DefaultLimit || first[0].ID != ids[11] {
		t.Fatalf("expected newest first with default limit, got %d orders", len(first))
	}

	second, err := f.svc.GetOrdersByUser(ctx, "u-1", 2, 10)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second) != 2 || second[1].ID != ids[0] {
		t.Fatalf("unexpected second page %+v", second)
	}

	empty, err := f.svc.GetOrdersByUser(ctx, "u-1", 5, 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty page, got %d, %v", len(empty), err)
	}

	all, err := f.svc.GetOrdersByUser(ctx, "u-1", 1, 1000)
	if err != nil || len(all) != 12 {
		t.Fatalf("expected all 12 orders under the cap, got %d, %v", len(all), err)
	}

	for _, page := range []int{1 << 62, math.MaxInt} {
		far, err := f.svc.GetOrdersByUser(ctx, "u-1", page, MaxLimit)
		if err != nil || far == nil || len(far) != 0 {
			t.Fatalf("page %d: expected an empty page, got %v, %v", page, far, err)
		}
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	f := newFixture(t, map[string]int{"p": 10})
	f.sink.err = errors.New("broker down")

	if _, err := f.svc.CreateOrder(context.Background(), "u-1", []string{"p"}, []int{1}); err != nil {
		t.Fatalf("create must succeed when publishing fails: %v", err)
	}
}

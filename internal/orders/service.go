package orders

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"math"
	"time"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// restoreTimeout bounds stock restoration, which outlives the request
	// context.
	restoreTimeout = 10 * time.Second
)

// Ledger is the part of the availability ledger orders depend on.
type Ledger interface {
	ReserveAll(ctx context.Context, items []catalog.ItemQty) error
	RestoreAll(ctx context.Context, items []catalog.ItemQty) error
}

type ProductLookup interface {
	GetByID(ctx context.Context, id string) (catalog.Product, error)
}

type Service struct {
	store    Store
	ledger   Ledger
	products ProductLookup
	events   EventSink
	logger   *zap.Logger
	tracer   trace.Tracer
	producer string
	now      func() time.Time
}

func NewService(store Store, ledger Ledger, products ProductLookup, events EventSink, logger *zap.Logger, producer string) *Service {
	if events == nil {
		events = NopSink{}
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		products: products,
		events:   events,
		logger:   logger,
		tracer:   otel.Tracer("github.com/ariefcatur/go-shop-orders/internal/orders"),
		producer: producer,
		now:      time.Now,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateOrder reserves stock for every line item and persists a new order in
// the validating status. Either every line item is reserved or none is.
func (s *Service) CreateOrder(ctx context.Context, userID string, productIDs []string, quantities []int) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("order.line_items", len(productIDs)),
	))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return Order{}, apperr.Unauthorized("missing user identity")
	}
	if len(productIDs) == 0 {
		return Order{}, apperr.Validation("an order needs at least one product")
	}
	if len(productIDs) != len(quantities) {
		return Order{}, apperr.Validation("got %d products but %d quantities", len(productIDs), len(quantities))
	}
	for i, q := range quantities {
		if productIDs[i] == "" {
			return Order{}, apperr.Validation("product id at position %d is empty", i)
		}
		if q <= 0 {
			return Order{}, apperr.Validation("quantity at position %d must be positive, got %d", i, q)
		}
	}

	refs := make([]ProductRef, len(productIDs))
	names := make(map[string]string, len(productIDs))
	items := make([]catalog.ItemQty, len(productIDs))
	for i, id := range productIDs {
		name, ok := names[id]
		if !ok {
			p, err := s.products.GetByID(ctx, id)
			if err != nil {
				return Order{}, err
			}
			name = p.Name
			names[id] = name
		}
		refs[i] = ProductRef{ID: id, Name: name}
		items[i] = catalog.ItemQty{ProductID: id, Qty: quantities[i]}
	}

	if err := s.ledger.ReserveAll(ctx, items); err != nil {
		return Order{}, err
	}

	o, err = s.store.Create(ctx, Order{
		ID:        uuid.NewString(),
		Products:  refs,
		User:      UserRef{ID: userID},
		Quantity:  append([]int(nil), quantities...),
		Status:    StatusValidating,
		IssueDate: s.now().UTC(),
	})
	if err != nil {
		if rerr := s.restore(ctx, items); rerr != nil {
			s.logger.Error("release reservation after failed create",
				zap.String("user_id", userID),
				zap.Error(rerr),
			)
		}
		return Order{}, fmt.Errorf("persist order: %w", err)
	}

	metrics.OrdersCreated.Inc()
	s.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.Int("line_items", len(items)),
	)
	s.publish(ctx, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID: o.ID,
		UserID:  userID,
		Status:  o.Status,
		Items:   items,
	})
	return o, nil
}

// UpdateOrderStatus advances the order one step along its lifecycle.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, userID string) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := VerifyOwnership(&current, userID); err != nil {
		return Order{}, err
	}
	next, err := Advance(current.Status)
	if err != nil {
		return Order{}, err
	}

	o, err = s.store.UpdateStatus(ctx, orderID, current.Status, next, EndDateFor(next, s.now()))
	if err != nil {
		return Order{}, err
	}

	metrics.StatusTransitions.WithLabelValues(string(next)).Inc()
	s.logger.Info("order status advanced",
		zap.String("order_id", orderID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next)),
	)
	s.publish(ctx, EventOrderStatusChanged, orderID, OrderStatusChangedPayload{
		OrderID: orderID,
		UserID:  userID,
		From:    current.Status,
		Status:  next,
		EndDate: o.EndDate,
	})
	return o, nil
}

// CancelOrder cancels a non-terminal order and gives its stock back. The
// status change is persisted before stock is restored, so a concurrent
// cancel can never restore twice.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CancelOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer func() { endSpan(span, err) }()

	current, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := VerifyOwnership(&current, userID); err != nil {
		return Order{}, err
	}
	switch {
	case current.Status == StatusReceived:
		return Order{}, apperr.New(apperr.ErrAlreadyCompleted, "The order is already completed")
	case current.Status == StatusCanceled:
		return Order{}, apperr.InvalidTransition("Cannot cancel. Order is canceled.")
	case !CanTransition(current.Status, StatusCanceled):
		return Order{}, apperr.InvalidTransition("Invalid order status %q", current.Status)
	}

	o, err = s.store.UpdateStatus(ctx, orderID, current.Status, StatusCanceled, EndDateFor(StatusCanceled, s.now()))
	if err != nil {
		return Order{}, err
	}
	metrics.OrdersCanceled.Inc()

	items := current.Items()
	restoreErr := s.restore(ctx, items)
	if restoreErr != nil {
		s.logger.Error("order canceled with incomplete stock restore",
			zap.String("order_id", orderID),
			zap.Error(restoreErr),
		)
	} else {
		s.logger.Info("order canceled", zap.String("order_id", orderID))
	}

	s.publish(ctx, EventOrderCanceled, orderID, OrderCanceledPayload{
		OrderID:         orderID,
		UserID:          userID,
		From:            current.Status,
		Status:          StatusCanceled,
		Items:           items,
		EndDate:         o.EndDate,
		RestoreComplete: restoreErr == nil,
	})
	return o, nil
}

// restore gives reserved stock back even when the request was canceled or
// timed out; the reservation or the cancel it undoes is already committed.
func (s *Service) restore(ctx context.Context, items []catalog.ItemQty) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	return s.ledger.RestoreAll(ctx, items)
}

func (s *Service) GetOrderByID(ctx context.Context, orderID string) (Order, error) {
	return s.store.GetByID(ctx, orderID)
}

// GetOrdersByUser returns one page of the user's orders, newest first.
// Missing or non-positive page and limit fall back to the defaults; limit is
// capped at MaxLimit.
func (s *Service) GetOrdersByUser(ctx context.Context, userID string, page, limit int) ([]Order, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	if page-1 > math.MaxInt/limit {
		return []Order{}, nil
	}
	return s.store.ListByUser(ctx, userID, page, limit)
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	ev, err := NewEnvelope(eventType, s.producer, orderID, traceID, payload)
	if err == nil {
		err = s.events.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn("publish order event",
			zap.String("event_type", eventType),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

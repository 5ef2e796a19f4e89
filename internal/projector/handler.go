// Package projector keeps the Redis order status cache in step with the
// order lifecycle events on Kafka.
package projector

import (
	"context"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type statusPayload struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type Handler struct {
	cache  *redisx.StatusCache
	dedup  *redisx.Dedup
	logger *zap.Logger
	tracer trace.Tracer
}

func NewHandler(cache *redisx.StatusCache, dedup *redisx.Dedup, logger *zap.Logger) *Handler {
	return &Handler{
		cache:  cache,
		dedup:  dedup,
		logger: logger,
		tracer: otel.Tracer("github.com/ariefcatur/go-shop-orders/internal/projector"),
	}
}

// Handle is a kafka.Handler. Malformed and unknown messages are logged and
// skipped so they do not block the partition.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	ctx = kafkax.ExtractTraceContext(ctx, m.Headers)
	ctx, span := h.tracer.Start(ctx, "projector.Handle", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		h.logger.Warn("skipping malformed message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	span.SetAttributes(
		attribute.String("event.id", env.EventID),
		attribute.String("event.type", env.EventType),
	)

	switch env.EventType {
	case orders.EventOrderCreated, orders.EventOrderStatusChanged, orders.EventOrderCanceled:
	default:
		return nil
	}

	p, err := kafkax.UnwrapPayload[statusPayload](env.Payload)
	if err != nil || p.OrderID == "" || p.Status == "" {
		h.logger.Warn("skipping event without order status", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	first, err := h.dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		h.logger.Debug("duplicate event", zap.String("event_id", env.EventID))
		return nil
	}

	if err := h.cache.Set(ctx, p.OrderID, redisx.StatusEntry{Status: p.Status, UpdatedAt: env.OccurredAt}); err != nil {
		if rerr := h.dedup.Release(ctx, env.EventID); rerr != nil {
			h.logger.Warn("release dedup key", zap.String("event_id", env.EventID), zap.Error(rerr))
		}
		return err
	}
	h.logger.Info("order status projected",
		zap.String("order_id", p.OrderID),
		zap.String("status", p.Status),
		zap.String("event_type", env.EventType),
	)
	return nil
}

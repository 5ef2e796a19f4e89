package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"strconv"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// EnvelopeSink publishes order events through a Producer, keyed by order id.
type EnvelopeSink struct {
	Producer *Producer
}

func (s *EnvelopeSink) Publish(ctx context.Context, ev orders.Envelope) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	headers := append(InjectTraceHeaders(ctx),
		kafka.Header{Key: HeaderEventType, Value: []byte(ev.EventType)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
	return s.Producer.Publish(ctx, orders.PartitionKey(ev.CorrelationID), value, headers...)
}

// InjectTraceHeaders renders the span context of ctx as message headers.
func InjectTraceHeaders(ctx context.Context) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := make([]kafka.Header, 0, len(carrier)+2)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// ExtractTraceContext continues the trace carried in message headers.
func ExtractTraceContext(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

package observability

import (
	"context"
	"go.opentelemetry.io/otel"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("shop-api", "debug")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("debug level should be enabled")
	}

	if _, err := NewLogger("shop-api", "loud"); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestSetupTracing_NoEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "shop-api", "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if fields := otel.GetTextMapPropagator().Fields(); len(fields) == 0 {
		t.Error("expected a propagator with trace fields")
	}
}

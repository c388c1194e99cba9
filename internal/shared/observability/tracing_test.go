package observability

import (
	"context"
	"testing"
)

func TestInitTracing_NoEndpointIsNoop(t *testing.T) {
	tr, err := InitTracing(context.Background(), TracingConfig{ServiceName: "upgradeimpact"})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	_, span := tr.Tracer.Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected no-op span without an endpoint")
	}
	span.End()

	if err := tr.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
	if Tracer() == nil {
		t.Error("expected global tracer")
	}
}

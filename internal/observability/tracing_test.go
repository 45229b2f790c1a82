package observability

import (
	"context"
	"testing"
)

func TestInitTracing_NoEndpointIsNoop(t *testing.T) {
	tp, err := InitTracing(context.Background(), &TracingConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if tp.Tracer() == nil {
		t.Error("no-op mode must still hand out a tracer")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown should be clean: %v", err)
	}
}

func TestInitTracing_NilConfigUsesDefaults(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tp.Shutdown(context.Background())
	if tp.Tracer() == nil {
		t.Error("expected tracer from default config")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx := context.Background()

	_, span := StartQuerySpan(ctx, "org-1")
	RecordGuardrailOutcome(span, false, 0)
	RecordAnswer(span, 2, 0.9)
	RecordError(span, nil)
	span.End()

	_, span = StartLLMSpan(ctx, "openai", "gpt-test")
	RecordLLMUsage(span, 100, 20, 0)
	RecordError(span, errTest)
	span.End()
}

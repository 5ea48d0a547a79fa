package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer swaps the global tracer provider for one recording into
// memory. Tests using it must not run in parallel.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// logTo points the default logger at a buffer. Not parallel-safe.
func logTo(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_RecordsUnderConchScope(t *testing.T) {
	exp := installTracer(t)

	ctx, span := StartSpan(context.Background(), "oracle.WhatToEat")
	_, child := StartSpan(ctx, "oracle.classify")
	child.End()
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		if s.InstrumentationScope.Name != scope {
			t.Errorf("span %q scope = %q, want %q", s.Name, s.InstrumentationScope.Name, scope)
		}
	}
	if spans[0].Name != "oracle.classify" || spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Errorf("classify span is not a child of WhatToEat: %+v", spans[0].Parent)
	}
}

func TestCorrelationID(t *testing.T) {
	installTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("untraced CorrelationID = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "api.ask")
	defer span.End()

	cid := CorrelationID(ctx)
	if b, err := hex.DecodeString(cid); err != nil || len(b) != 16 {
		t.Errorf("CorrelationID = %q, want 32 hex characters", cid)
	}
	if cid != span.SpanContext().TraceID().String() {
		t.Errorf("CorrelationID = %q, want the span's trace id", cid)
	}
}

func TestLogger(t *testing.T) {
	installTracer(t)
	buf := logTo(t)

	Logger(context.Background()).Info("no request")
	ctx, span := StartSpan(context.Background(), "speech.speak")
	Logger(ctx).Info("in request")
	span.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d lines, want 2: %q", len(lines), buf.String())
	}
	if strings.Contains(lines[0], "trace_id") {
		t.Errorf("untraced line carries a trace id: %s", lines[0])
	}
	wantTrace := "trace_id=" + span.SpanContext().TraceID().String()
	if !strings.Contains(lines[1], wantTrace) || !strings.Contains(lines[1], "span_id=") {
		t.Errorf("traced line = %s, want %s and span_id", lines[1], wantTrace)
	}
}

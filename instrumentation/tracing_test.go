package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingTracer() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	return sr, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestSpanHelpers_RecordAttributes(t *testing.T) {
	sr, tp := recordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "oauth.token")

	AddOAuthFlowAttributes(span, "client-1", "", "openid")
	AddHTTPAttributes(span, "POST", "token", 200)
	AddStorageAttributes(span, "get_client", "memory")
	AddSecurityAttributes(span, "10.0.0.1")
	SetSpanSuccess(span)
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	attrs := attrMap(ended[0].Attributes())

	want := map[string]string{
		AttrClientID:         "client-1",
		AttrScope:            "openid",
		AttrHTTPMethod:       "POST",
		AttrStorageOperation: "get_client",
		AttrStorageType:      "memory",
		AttrClientIP:         "10.0.0.1",
	}
	for k, v := range want {
		if got := attrs[k].AsString(); got != v {
			t.Errorf("attribute %s = %q, want %q", k, got, v)
		}
	}
	if _, ok := attrs[AttrUserID]; ok {
		t.Error("empty user ID was recorded")
	}
	if ended[0].Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", ended[0].Status().Code)
	}
}

func TestRecordError(t *testing.T) {
	sr, tp := recordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	RecordError(span, errors.New("boom"))
	span.End()

	s := sr.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "boom" {
		t.Errorf("status = %+v, want Error(boom)", s.Status())
	}
	if len(s.Events()) == 0 {
		t.Error("RecordError() did not add an exception event")
	}
}

func TestSetSpanError(t *testing.T) {
	sr, tp := recordingTracer()
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	SetSpanError(span, "invalid_grant")
	span.End()

	if got := sr.Ended()[0].Status(); got.Code != codes.Error || got.Description != "invalid_grant" {
		t.Errorf("status = %+v", got)
	}
}

func TestNilSafeHelpers_WithNilSpans(t *testing.T) {
	RecordError(nil, errors.New("x"))
	SetSpanSuccess(nil)
	SetSpanError(nil, "x")
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddOAuthFlowAttributes(nil, "c", "u", "s")
	AddStorageAttributes(nil, "op", "memory")
	AddHTTPAttributes(nil, "GET", "/", 200)
	AddSecurityAttributes(nil, "10.0.0.1")
}

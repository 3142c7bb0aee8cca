package services

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("checkout-service/services")

func endSpan(span trace.Span, serr *ServiceError) {
	if serr != nil {
		span.RecordError(serr)
		span.SetStatus(codes.Error, serr.Code)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// traceFields adds trace and span ids to a log line when a span is recording.
func traceFields(span trace.Span) []zap.Field {
	sc := span.SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

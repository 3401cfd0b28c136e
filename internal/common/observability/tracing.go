package observability

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"itdocs-query/internal/common/logger"
)

// spanLogger writes every finished span to the debug log.
type spanLogger struct {
	logger logger.Logger
}

func (s *spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (s *spanLogger) OnEnd(span sdktrace.ReadOnlySpan) {
	fields := map[string]interface{}{
		"span":       span.Name(),
		"traceId":    span.SpanContext().TraceID().String(),
		"durationMs": span.EndTime().Sub(span.StartTime()).Milliseconds(),
		"status":     span.Status().Code.String(),
	}
	for _, kv := range span.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	s.logger.Debug("span finished", fields)
}

func (s *spanLogger) Shutdown(context.Context) error   { return nil }
func (s *spanLogger) ForceFlush(context.Context) error { return nil }

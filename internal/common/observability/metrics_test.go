package observability

import (
	"context"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"itdocs-query/internal/common/logger"
)

func TestObservability_RecordQuery(t *testing.T) {
	reg := promclient.NewRegistry()
	obs := New("itdocs-query-test", reg, logger.NewTestLogger(t))
	t.Cleanup(obs.Shutdown)

	obs.RecordQuery(context.Background(), "SEARCH", "success", 12*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "itdocs_queries_processed")
	assert.Contains(t, joined, "itdocs_queries_duration")
}

func TestObservability_ZeroValueIsInert(t *testing.T) {
	var obs Observability

	assert.NotPanics(t, func() {
		obs.RecordQuery(context.Background(), "HELP", "success", time.Millisecond)
		_, span := obs.Tracer("test").Start(context.Background(), "noop")
		span.End()
		obs.Shutdown()
	})
}

func TestObservability_Tracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := New("itdocs-query-test", promclient.NewRegistry(), logger.NewTestLogger(t), sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(obs.Shutdown)

	_, span := obs.Tracer("engine").Start(context.Background(), "engine.ProcessQuery")
	span.SetAttributes(attribute.String("itdocs.intent", "SEARCH"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "engine.ProcessQuery", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("itdocs.intent", "SEARCH"))

	var service string
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "itdocs-query-test", service)
}

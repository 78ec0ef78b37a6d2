package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/jscallgraph/services/callgraph/ast"
)

// The package tracer binds to the first global provider, so every span
// assertion lives in this one test.
func TestTracing_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	sources := []ast.Source{{Path: "a.js", Content: []byte(callbackSource)}}

	t.Run("successful analysis", func(t *testing.T) {
		exporter.Reset()
		_, err := Analyze(context.Background(), sources, StrategyDemand, nil)
		require.NoError(t, err)

		spans := spansByName(exporter.GetSpans())
		require.Contains(t, spans, "engine.Analyze")
		require.Contains(t, spans, "engine.BuildDemand")
		assert.NotEqual(t, codes.Error, spans["engine.Analyze"].Status.Code)

		build := spans["engine.BuildDemand"]
		assert.Equal(t, spans["engine.Analyze"].SpanContext.TraceID(), build.SpanContext.TraceID())
		attrs := map[string]bool{}
		for _, kv := range build.Attributes {
			attrs[string(kv.Key)] = true
		}
		assert.True(t, attrs["call_edges"])
		assert.True(t, attrs["iterations"])
	})

	t.Run("budget exceeded marks spans as errors", func(t *testing.T) {
		exporter.Reset()
		_, err := Analyze(context.Background(), sources, StrategyOneShot, nil, WithMaxSteps(1))
		require.ErrorIs(t, err, ErrAnalysisBudgetExceeded)

		spans := spansByName(exporter.GetSpans())
		require.Contains(t, spans, "engine.BuildPessimistic")
		assert.Equal(t, codes.Error, spans["engine.BuildPessimistic"].Status.Code)
		assert.Equal(t, codes.Error, spans["engine.Analyze"].Status.Code)
		assert.NotEmpty(t, spans["engine.Analyze"].Events)
	})
}

func spansByName(stubs tracetest.SpanStubs) map[string]tracetest.SpanStub {
	out := make(map[string]tracetest.SpanStub, len(stubs))
	for _, s := range stubs {
		out[s.Name] = s
	}
	return out
}

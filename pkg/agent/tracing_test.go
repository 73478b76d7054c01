package agent

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/agentcore/runtime/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExporter captures every span handed to it. It implements
// sdktrace.SpanExporter (ExportSpans/Shutdown) so a real SDK TracerProvider
// can be installed in tests without standing up an OTLP collector.
type recordingExporter struct {
	mu    sync.Mutex
	spans []sdktrace.ReadOnlySpan
}

func (e *recordingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spans = append(e.spans, spans...)
	return nil
}

func (e *recordingExporter) Shutdown(ctx context.Context) error { return nil }

func (e *recordingExporter) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.spans))
	for i, s := range e.spans {
		out[i] = s.Name()
	}
	return out
}

// TestAgentEmitsSpansViaSDKTracerProvider installs a real SDK TracerProvider
// (go.opentelemetry.io/otel/sdk/trace) with an in-memory exporter and
// verifies the step loop's "agent.step"/"agent.tool" spans are actually
// recorded, not just no-op'd by the default global tracer.
func TestAgentEmitsSpansViaSDKTracerProvider(t *testing.T) {
	exporter := &recordingExporter{}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	model := &scriptedModel{responses: []message.ModelResponse{
		{Message: message.Message{Role: message.RoleAssistant, Content: "hi"}},
	}}
	a := New(Config{ID: "A", Model: model})

	_, err := a.RunAsync(context.Background(), "hello")
	require.NoError(t, err)

	_ = tp.ForceFlush(context.Background())

	names := exporter.names()
	assert.Contains(t, names, "agent.step")
}

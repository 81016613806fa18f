package analysis

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/monitome/internal/activity"
	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/pkg/provider/llm"
	"github.com/MrWong99/monitome/pkg/provider/llm/mock"
)

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// newTestAnalyzer returns an analyzer over a mock provider replying with
// the given contents in order, backed by a fresh MemStore.
func newTestAnalyzer(t *testing.T, replies ...string) (*Analyzer, *mock.Provider, *activity.MemStore) {
	t.Helper()
	p := &mock.Provider{ModelCapabilities: llm.ModelCapabilities{SupportsVision: true, SupportsJSONMode: true}}
	for _, r := range replies {
		p.Responses = append(p.Responses, &llm.CompletionResponse{Content: r})
	}
	store := activity.NewMemStore(0)
	a, err := NewAnalyzer(p, WithStore(store), WithMetrics(newTestMetrics(t)))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a, p, store
}

var testPNG = llm.Image{MediaType: "image/png", Data: []byte("\x89PNG fake")}

const vscodeReply = `{
  "timestamp": "ignored",
  "app_name": "Visual Studio Code",
  "window_title": "main.go - monitome",
  "activity_type": "coding",
  "description": "Editing the session runner.",
  "document": "main.go",
  "tags": ["go", "coding"],
  "confidence": 1.7
}`

package resilience

import (
	"context"

	"github.com/MrWong99/monitome/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
//
// Requests carrying images are only routed to backends whose capabilities
// report vision support, so a text-only fallback never trips its breaker on
// a screenshot it could not have handled.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the provider names in failover order.
func (f *LLMFallback) Names() []string {
	return f.group.Names()
}

// Complete sends the request to the first healthy eligible provider and
// returns its response. If no provider can accept the request's images the
// error wraps [llm.ErrVisionUnsupported].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var eligible func(llm.Provider) bool
	if req.HasImages() {
		if !f.Capabilities().SupportsVision {
			return nil, llm.ErrVisionUnsupported
		}
		eligible = func(p llm.Provider) bool { return p.Capabilities().SupportsVision }
	}
	return ExecuteWithResultWhere(f.group, eligible, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the union of the group's capabilities: vision is
// supported if any backend supports it. Limits are taken from the primary.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	if len(f.group.entries) == 0 {
		return llm.ModelCapabilities{}
	}
	caps := f.group.entries[0].value.Capabilities()
	for _, e := range f.group.entries[1:] {
		c := e.value.Capabilities()
		caps.SupportsVision = caps.SupportsVision || c.SupportsVision
		caps.SupportsJSONMode = caps.SupportsJSONMode || c.SupportsJSONMode
	}
	return caps
}

// Available reports whether any backend's circuit breaker admits calls.
func (f *LLMFallback) Available() bool {
	return f.group.Available()
}

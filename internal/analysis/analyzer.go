// Package analysis turns desktop screenshots into structured activity records
// using a vision-capable LLM, and serves that capability over HTTP.
//
// The [Analyzer] issues one JSON-mode completion per operation. Extracted
// activities are saved to an optional [activity.Store] so that
// [Analyzer.SummarizeActivities] can later condense the recent history.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/monitome/internal/activity"
	"github.com/MrWong99/monitome/internal/observe"
	"github.com/MrWong99/monitome/pkg/provider/llm"
)

// Default completion settings.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1024
)

// emptySummary is returned for an empty activity list without consulting the
// model.
const emptySummary = "No activities to summarize."

// Analyzer extracts activity information from screenshots.
//
// An Analyzer is safe for concurrent use.
type Analyzer struct {
	provider    llm.Provider
	store       activity.Store
	metrics     *observe.Metrics
	temperature float64
	maxTokens   int
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithStore saves every extracted activity to s.
func WithStore(s activity.Store) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithTemperature sets the sampling temperature of every completion.
func WithTemperature(t float64) Option {
	return func(a *Analyzer) { a.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// NewAnalyzer creates an Analyzer backed by provider.
func NewAnalyzer(provider llm.Provider, opts ...Option) (*Analyzer, error) {
	if provider == nil {
		return nil, errors.New("analysis: provider must not be nil")
	}
	a := &Analyzer{
		provider:    provider,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a, nil
}

// Store returns the configured activity store, or nil.
func (a *Analyzer) Store() activity.Store { return a.store }

// ExtractScreenActivity describes what the user is doing in img. timestamp is
// recorded verbatim on the result. When a store is configured the activity
// is saved and its ID set; a failed save is logged but does not fail the
// extraction.
func (a *Analyzer) ExtractScreenActivity(ctx context.Context, img llm.Image, timestamp string) (_ *activity.ScreenActivity, err error) {
	const op = "extract"
	ctx, finish := a.begin(ctx, op)
	defer func() { finish(err) }()

	var act activity.ScreenActivity
	err = a.complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: "Timestamp: " + timestamp,
			Images:  []llm.Image{img},
		}},
	}, &act)
	if err != nil {
		return nil, fmt.Errorf("analysis: extract screen activity: %w", err)
	}

	act.ID = 0
	act.Timestamp = timestamp
	act.Confidence = min(max(act.Confidence, 0), 1)
	if act.Tags == nil {
		act.Tags = []string{}
	}

	if a.store != nil {
		id, serr := a.store.Save(ctx, act)
		if serr != nil {
			observe.Logger(ctx).Warn("failed to store screen activity", "err", serr, "app", act.AppName)
		} else {
			act.ID = id
			a.metrics.ActivitiesStored.Add(ctx, 1)
		}
	}
	return &act, nil
}

// QuickExtract identifies the foreground application in img.
func (a *Analyzer) QuickExtract(ctx context.Context, img llm.Image) (_ *activity.AppContext, err error) {
	const op = "quick_extract"
	ctx, finish := a.begin(ctx, op)
	defer func() { finish(err) }()

	var app activity.AppContext
	err = a.complete(ctx, llm.CompletionRequest{
		SystemPrompt: quickPrompt,
		Messages: []llm.Message{{
			Role:    "user",
			Content: "Which application is this?",
			Images:  []llm.Image{img},
		}},
	}, &app)
	if err != nil {
		return nil, fmt.Errorf("analysis: quick extract: %w", err)
	}
	return &app, nil
}

// SummarizeActivities condenses activities, which should be in chronological
// order. An empty list yields an empty summary without a model call. The
// reported total is always len(activities).
func (a *Analyzer) SummarizeActivities(ctx context.Context, activities []activity.ScreenActivity) (_ *activity.Summary, err error) {
	if len(activities) == 0 {
		return &activity.Summary{
			Summary:    emptySummary,
			TopApps:    []string{},
			Categories: map[string]int{},
			Highlights: []string{},
		}, nil
	}

	const op = "summarize"
	ctx, finish := a.begin(ctx, op)
	defer func() { finish(err) }()

	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, act := range activities {
		act.ID = 0
		if err := enc.Encode(act); err != nil {
			return nil, fmt.Errorf("analysis: summarize: encode activity: %w", err)
		}
	}

	var sum activity.Summary
	err = a.complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarizePrompt,
		Messages:     []llm.Message{{Role: "user", Content: b.String()}},
	}, &sum)
	if err != nil {
		return nil, fmt.Errorf("analysis: summarize: %w", err)
	}
	sum.TotalActivities = len(activities)
	if sum.TopApps == nil {
		sum.TopApps = []string{}
	}
	if sum.Categories == nil {
		sum.Categories = map[string]int{}
	}
	if sum.Highlights == nil {
		sum.Highlights = []string{}
	}
	return &sum, nil
}

// begin starts the span for one operation and returns a func recording its
// outcome.
func (a *Analyzer) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "analysis."+op, attribute.String("operation", op))
	return ctx, func(err error) {
		a.metrics.RecordAnalysis(ctx, op, time.Since(start), err)
		observe.EndSpan(span, err)
	}
}

// complete issues one JSON-mode completion and decodes its reply into v.
func (a *Analyzer) complete(ctx context.Context, req llm.CompletionRequest, v any) error {
	req.JSONMode = true
	req.Temperature = a.temperature
	req.MaxTokens = a.maxTokens

	start := time.Now()
	resp, err := a.provider.Complete(ctx, req)
	a.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Bool("vision", req.HasImages())))
	if err != nil {
		return err
	}
	if resp == nil {
		return errors.New("empty completion response")
	}
	observe.Logger(ctx).Debug("completion received",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return decodeReply(resp.Content, v)
}

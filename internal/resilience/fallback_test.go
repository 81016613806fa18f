package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

// failing returns an attempt func that fails for the named entries and
// records every entry it is called with.
func failing(calls *[]string, bad ...string) func(string) (string, error) {
	return func(v string) (string, error) {
		*calls = append(*calls, v)
		if slices.Contains(bad, v) {
			return "", errTest
		}
		return "from-" + v, nil
	}
}

func newGroup(t *testing.T, cfg FallbackConfig, names ...string) *FallbackGroup[string] {
	t.Helper()
	fg := NewFallbackGroup(names[0], names[0], cfg)
	for _, n := range names[1:] {
		fg.AddFallback(n, n)
	}
	return fg
}

func TestExecuteWithResult_Order(t *testing.T) {
	tests := []struct {
		name      string
		bad       []string
		want      string
		wantCalls []string
		wantErr   bool
	}{
		{name: "primary ok", want: "from-openai", wantCalls: []string{"openai"}},
		{name: "primary fails", bad: []string{"openai"}, want: "from-anthropic", wantCalls: []string{"openai", "anthropic"}},
		{name: "first two fail", bad: []string{"openai", "anthropic"}, want: "from-ollama", wantCalls: []string{"openai", "anthropic", "ollama"}},
		{name: "all fail", bad: []string{"openai", "anthropic", "ollama"}, wantCalls: []string{"openai", "anthropic", "ollama"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := newGroup(t, FallbackConfig{}, "openai", "anthropic", "ollama")
			var calls []string
			got, err := ExecuteWithResult(fg, failing(&calls, tt.bad...))
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestFallbackGroup_OpenBreakerIsSkipped(t *testing.T) {
	clock := newTestClock()
	var results []string
	fg := newGroup(t, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour, Now: clock.Now},
		OnResult: func(provider string, err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			results = append(results, provider+":"+status)
		},
	}, "openai", "ollama")

	for range 2 {
		var calls []string
		_, _ = ExecuteWithResult(fg, failing(&calls, "openai"))
	}

	var calls []string
	got, err := ExecuteWithResult(fg, failing(&calls))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-ollama" || !slices.Equal(calls, []string{"ollama"}) {
		t.Fatalf("got %q via %v, want ollama only", got, calls)
	}

	want := []string{"openai:error", "ollama:ok", "openai:error", "ollama:ok", "ollama:ok"}
	if !slices.Equal(results, want) {
		t.Errorf("OnResult = %v, want %v", results, want)
	}
}

func TestExecuteWithResultWhere(t *testing.T) {
	fg := newGroup(t, FallbackConfig{}, "text", "vision-a", "vision-b")
	eligible := func(v string) bool { return v != "text" }

	var calls []string
	got, err := ExecuteWithResultWhere(fg, eligible, failing(&calls, "vision-a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-vision-b" {
		t.Errorf("result = %q, want from-vision-b", got)
	}
	if !slices.Equal(calls, []string{"vision-a", "vision-b"}) {
		t.Errorf("calls = %v", calls)
	}

	_, err = ExecuteWithResultWhere(fg, func(string) bool { return false }, failing(&calls))
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestExecuteWithResult_ContextErrorStops(t *testing.T) {
	fg := newGroup(t, FallbackConfig{}, "openai", "ollama")

	var calls []string
	_, err := ExecuteWithResult(fg, func(v string) (string, error) {
		calls = append(calls, v)
		return "", context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want bare context.DeadlineExceeded", err)
	}
	if !slices.Equal(calls, []string{"openai"}) {
		t.Errorf("calls = %v, want openai only", calls)
	}
}

func TestFallbackGroup_Execute(t *testing.T) {
	fg := newGroup(t, FallbackConfig{}, "primary", "secondary")
	var called string
	err := fg.Execute(func(v string) error {
		if v == "primary" {
			return errTest
		}
		called = v
		return nil
	})
	if err != nil || called != "secondary" {
		t.Fatalf("called = %q, err = %v", called, err)
	}
	if got := fg.Names(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Names() = %v", got)
	}
}

func TestFallbackGroup_Available(t *testing.T) {
	clock := newTestClock()
	fg := newGroup(t, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now},
	}, "openai", "ollama")

	if !fg.Available() {
		t.Fatal("fresh group should be available")
	}
	var calls []string
	_, _ = ExecuteWithResult(fg, failing(&calls, "openai", "ollama"))
	if fg.Available() {
		t.Fatal("group with every breaker open should be unavailable")
	}
	clock.Advance(time.Minute)
	if !fg.Available() {
		t.Fatal("group should recover once the reset timeout elapses")
	}
}

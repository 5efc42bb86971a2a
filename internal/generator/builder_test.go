package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	logx "optobot/pkg/logx"
)

func TestClampPost(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLen int
		clamped bool
	}{
		{"short unchanged", "gm", 2, false},
		{"exactly at limit", strings.Repeat("a", 280), 280, false},
		{"one over", strings.Repeat("a", 281), 280, true},
		{"way over", strings.Repeat("b", 1000), 280, true},
		{"multibyte over", strings.Repeat("日", 300), 280, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampPost(tt.in)
			if n := len([]rune(got)); n != tt.wantLen {
				t.Fatalf("len = %d, want %d", n, tt.wantLen)
			}
			if tt.clamped && !strings.HasSuffix(got, "...") {
				t.Fatalf("clamped output must end with ellipsis: %q", got[len(got)-9:])
			}
			if !tt.clamped && got != tt.in {
				t.Fatal("short input must pass through unchanged")
			}
			// Idempotent: clamping twice changes nothing.
			if again := ClampPost(got); again != got {
				t.Fatal("ClampPost is not idempotent")
			}
		})
	}
}

func TestComposeTwoStages(t *testing.T) {
	mock := &MockLLM{Responses: []string{"full analysis text", "short post $TKN"}}
	b := NewBuilder(mock, 0, logx.Nop())

	got, err := b.Compose(context.Background(), "TKN", "excerpt", "corpus", "news")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if got.Body != "short post $TKN" {
		t.Fatalf("body = %q", got.Body)
	}
	if len(mock.Calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(mock.Calls))
	}
	if !mock.Calls[0].AllowWebContext {
		t.Fatal("analysis stage must allow web context")
	}
	if mock.Calls[1].AllowWebContext {
		t.Fatal("compress stage must not use web context")
	}
	if !strings.Contains(mock.Calls[0].Prompt, "corpus") || !strings.Contains(mock.Calls[0].Prompt, "news") {
		t.Fatal("analysis prompt must carry corpus and news context")
	}
	if !strings.Contains(mock.Calls[1].Prompt, "full analysis text") {
		t.Fatal("compress prompt must carry the analysis")
	}
	if got.Usage.InputTokens != 20 || got.Usage.OutputTokens != 10 {
		t.Fatalf("usage not summed: %+v", got.Usage)
	}
}

func TestComposeClampsLongOutput(t *testing.T) {
	long := strings.Repeat("x", 500)
	mock := &MockLLM{Responses: []string{"analysis", long}}
	b := NewBuilder(mock, 0.5, logx.Nop())

	got, err := b.Compose(context.Background(), "TKN", "", "", "")
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if n := len([]rune(got.Body)); n != 280 {
		t.Fatalf("body len = %d, want 280", n)
	}
	if !strings.HasSuffix(got.Body, "...") {
		t.Fatal("clamped body must end with ellipsis")
	}
}

func TestComposeFailsOnEitherStage(t *testing.T) {
	mock := &MockLLM{Errs: []error{errors.New("boom")}}
	b := NewBuilder(mock, 0, logx.Nop())
	if _, err := b.Compose(context.Background(), "TKN", "", "", ""); err == nil {
		t.Fatal("expected error when analysis stage fails")
	}

	mock = &MockLLM{Responses: []string{"analysis"}, Errs: []error{nil, errors.New("boom")}}
	b = NewBuilder(mock, 0, logx.Nop())
	if _, err := b.Compose(context.Background(), "TKN", "", "", ""); err == nil {
		t.Fatal("expected error when compress stage fails")
	}
}

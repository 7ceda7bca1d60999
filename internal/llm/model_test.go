package llm

import (
	"context"
	"errors"
	"testing"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"padded", "  {\"a\":1}\n", `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFence(tt.in); got != tt.want {
				t.Errorf("StripFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestModelWithoutKey(t *testing.T) {
	m, err := NewModel(Config{Provider: ProviderOpenAI})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if m.Configured() {
		t.Fatalf("model without key should not be configured")
	}
	st := m.Status()
	if st.Source != KeySourceNone || st.Model != DefaultModel {
		t.Fatalf("status = %+v", st)
	}
	if _, err := m.GenerateJSON(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestModelRejectsUnknownProvider(t *testing.T) {
	if _, err := NewModel(Config{Provider: "bard", APIKey: "k"}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestModelWithKey(t *testing.T) {
	m, err := NewModel(Config{Provider: ProviderOpenAI, APIKey: "nvapi-test", KeySource: KeySourceEnv})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	if !m.Configured() || m.Status().Source != KeySourceEnv {
		t.Fatalf("status = %+v", m.Status())
	}
}

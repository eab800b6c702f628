package domain

import "testing"

func TestResolveRoute(t *testing.T) {
	tests := []struct {
		model      string
		credential string
		want       Route
	}{
		{"gemini-3-flash-preview", "", Route{Backend: BackendPrimary}},
		{"gemini-3-pro-preview", "sk", Route{Backend: BackendPrimary}},
		{"openai/gpt-4o", "", Route{Backend: BackendSecondary}},
		{"openai/gpt-4o", "sk", Route{Backend: BackendSecondary, Credential: "sk"}},
	}
	for _, tt := range tests {
		if got := ResolveRoute(tt.model, tt.credential); got != tt.want {
			t.Errorf("ResolveRoute(%q, %q) = %+v, want %+v", tt.model, tt.credential, got, tt.want)
		}
	}
}

func TestMemoryWith(t *testing.T) {
	m, ok := UserMemory{}.With(MemoryPersonality, "warm")
	if !ok || m.Personality != "warm" {
		t.Errorf("With(personality) = %+v, %v", m, ok)
	}
	if _, ok := m.With(MemoryField("bogus"), "x"); ok {
		t.Error("expected unknown field to be rejected")
	}
	if m.IsEmpty() {
		t.Error("memory with personality reported empty")
	}
}

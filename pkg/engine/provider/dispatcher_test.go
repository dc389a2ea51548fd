package provider

import (
	"context"
	"testing"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/runtime"
)

func TestLooksLikeOAuthKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"standard secret key", "sk-abc123", false},
		{"project key", "sk-proj-abc123", false},
		{"oauth access token", "ya29.a0AfH6SMC...", true},
		{"empty key", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksLikeOAuthKey(tt.key); got != tt.want {
				t.Errorf("looksLikeOAuthKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestShouldRetryOnChatCompletions(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		want   bool
	}{
		{"forbidden", "status 403: forbidden", true},
		{"terms of service", "violates our Terms of Service", true},
		{"not supported", "this model is not supported for this endpoint", true},
		{"model_not_supported code", `{"code":"model_not_supported"}`, true},
		{"unrelated 500", "status 500: internal server error", false},
		{"rate limited", "status 429: too many requests", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetryOnChatCompletions(tt.detail); got != tt.want {
				t.Errorf("shouldRetryOnChatCompletions(%q) = %v, want %v", tt.detail, got, tt.want)
			}
		})
	}
}

func TestRegistrySeedsRequiredProviders(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"openai", "github-copilot", "openai-compatible"} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("registry missing required provider %q", id)
		}
	}
	if _, ok := r.Get("does-not-exist"); ok {
		t.Errorf("registry should not resolve an unregistered provider id")
	}
}

func TestDispatchUnsupportedProvider(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	model := api.ActiveModel{ProviderID: "nonexistent", ModelID: "x", APIKey: "k"}
	_, err := d.Complete(context.Background(), model, runtime.LLMRequest{})
	if err == nil {
		t.Fatal("expected an error for an unregistered provider")
	}
	if _, ok := err.(*UnsupportedProvider); !ok {
		t.Errorf("expected *UnsupportedProvider, got %T: %v", err, err)
	}
}

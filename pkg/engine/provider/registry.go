// Package provider implements the uniform LLM provider abstraction: a
// registry of known providers, dispatch between the Chat-Completions and
// Responses-stream wire protocols, and the github-copilot token exchange.
package provider

import (
	"os"

	"zagent/pkg/engine/api"
)

// Registry holds the known ProviderSpecs, keyed by provider id.
type Registry struct {
	specs map[string]api.ProviderSpec
}

// NewRegistry returns a Registry seeded with the minimum providers
// SPEC_FULL.md §4.2 requires: openai, github-copilot, and an
// openai-compatible fallback for self-hosted/compatible endpoints.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]api.ProviderSpec)}
	r.Register(api.ProviderSpec{
		ProviderID:  "openai",
		DisplayName: "OpenAI",
		Endpoints: api.ProviderEndpoints{
			Chat:      "https://api.openai.com/v1/chat/completions",
			Responses: "https://api.openai.com/v1/responses",
			Models:    "https://api.openai.com/v1/models",
		},
		APIKeyEnvVar: "OPENAI_API_KEY",
	})
	r.Register(api.ProviderSpec{
		ProviderID:  "github-copilot",
		DisplayName: "GitHub Copilot",
		Endpoints: api.ProviderEndpoints{
			Chat:          "https://api.githubcopilot.com/chat/completions",
			Responses:     "https://api.githubcopilot.com/responses",
			TokenExchange: "https://api.github.com/copilot_internal/v2/token",
		},
		APIKeyEnvVar:         "GITHUB_TOKEN",
		SupportsSubscription: true,
		RequiredHeaders: map[string]string{
			"Editor-Version":        "zagent/1.0",
			"Editor-Plugin-Version": "zagent/1.0",
			"X-Initiator":           "agent",
			"Openai-Intent":         "conversation-edits",
		},
	})
	r.Register(api.ProviderSpec{
		ProviderID:  "openai-compatible",
		DisplayName: "OpenAI-compatible",
		Endpoints: api.ProviderEndpoints{
			Chat: compatibleBaseURL() + "/chat/completions",
		},
		APIKeyEnvVar: "LLM_API_KEY",
	})
	return r
}

func compatibleBaseURL() string {
	base := os.Getenv("LLM_BASE_URL")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base
}

// Register adds or replaces a ProviderSpec.
func (r *Registry) Register(spec api.ProviderSpec) {
	r.specs[spec.ProviderID] = spec
}

// Get looks up a ProviderSpec by id.
func (r *Registry) Get(providerID string) (api.ProviderSpec, bool) {
	spec, ok := r.specs[providerID]
	return spec, ok
}

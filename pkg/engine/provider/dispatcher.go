package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/runtime"
)

// Dispatcher routes a turn's LLM call to the correct wire protocol and
// endpoint for the active model's provider, per SPEC_FULL.md §4.2:
//
//  1. openai + an OAuth-like key (not starting with "sk-") -> Responses-stream.
//  2. github-copilot -> resolve a bearer, try Responses-stream first, and
//     retry once against Chat-Completions if the first attempt fails with
//     one of the known unsupported-model error fragments.
//  3. anything else -> Chat-Completions.
type Dispatcher struct {
	registry *Registry
	client   *http.Client
}

// NewDispatcher builds a Dispatcher over the given Registry, with an HTTP
// client tuned for long-lived SSE reads (no overall request timeout; the
// caller's context governs cancellation instead).
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		client: &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}
}

// looksLikeOAuthKey is rule 1's key-shape heuristic: OpenAI API keys start
// with "sk-"; anything else presented as an OpenAI key is treated as an
// OAuth-issued access token and routed to the Responses-stream protocol.
func looksLikeOAuthKey(key string) bool {
	return !hasPrefix(key, "sk-")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Complete dispatches a single LLM call for the active model and returns
// a stream over the response, per whichever protocol the dispatch rules
// select.
func (d *Dispatcher) Complete(ctx context.Context, model api.ActiveModel, req runtime.LLMRequest) (runtime.LLMStream, error) {
	spec, ok := d.registry.Get(model.ProviderID)
	if !ok {
		return nil, &UnsupportedProvider{ProviderID: model.ProviderID}
	}

	switch model.ProviderID {
	case "openai":
		if looksLikeOAuthKey(model.APIKey) && spec.Endpoints.Responses != "" {
			return completeResponsesStream(ctx, d.client, spec.Endpoints.Responses, model.APIKey, spec.RequiredHeaders, model.ModelID, req, model.ReasoningEffort)
		}
		return completeChatCompletions(ctx, d.client, spec.Endpoints.Chat, model.APIKey, spec.RequiredHeaders, model.ModelID, req, model.ReasoningEffort)

	case "github-copilot":
		bearer := resolveCopilotBearer(ctx, d.client, spec.Endpoints.TokenExchange, model.APIKey)
		stream, err := completeResponsesStream(ctx, d.client, spec.Endpoints.Responses, bearer, spec.RequiredHeaders, model.ModelID, req, model.ReasoningEffort)
		if err == nil {
			return stream, nil
		}
		if !shouldRetryOnChatCompletions(err.Error()) {
			return nil, err
		}
		return completeChatCompletions(ctx, d.client, spec.Endpoints.Chat, bearer, spec.RequiredHeaders, model.ModelID, req, model.ReasoningEffort)

	default:
		return completeChatCompletions(ctx, d.client, spec.Endpoints.Chat, model.APIKey, spec.RequiredHeaders, model.ModelID, req, model.ReasoningEffort)
	}
}

// ModelLLM adapts a Dispatcher plus a fixed ActiveModel to the runtime.LLM
// interface, so it can be installed as a TurnRunnerConfig.LLM in place of a
// single-provider client.
type ModelLLM struct {
	Dispatcher *Dispatcher
	Model      api.ActiveModel
}

func NewModelLLM(dispatcher *Dispatcher, model api.ActiveModel) *ModelLLM {
	return &ModelLLM{Dispatcher: dispatcher, Model: model}
}

func (m *ModelLLM) Stream(ctx context.Context, req runtime.LLMRequest) (runtime.LLMStream, error) {
	if !m.Model.Usable(true) {
		return nil, fmt.Errorf("model not usable: provider=%s model=%s", m.Model.ProviderID, m.Model.ModelID)
	}
	ctx = WithLastErrorSlot(ctx)
	return m.Dispatcher.Complete(ctx, m.Model, req)
}

package api

import "time"

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Provider / Model Entities
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// ProviderEndpoints names the HTTP surfaces a provider exposes. Bit-exact
// strings matter here: auth and routing both key off them.
type ProviderEndpoints struct {
	Chat          string `json:"chat"`
	Responses     string `json:"responses,omitempty"`
	Models        string `json:"models,omitempty"`
	TokenExchange string `json:"token_exchange,omitempty"`
}

// ProviderSpec is immutable identity/configuration for one upstream LLM
// provider. Invariant: at least one of Endpoints.{Chat,Responses} is set.
type ProviderSpec struct {
	ProviderID           string            `json:"provider_id"`
	DisplayName          string            `json:"display_name"`
	Endpoints            ProviderEndpoints `json:"endpoints"`
	APIKeyEnvVar         string            `json:"api_key_env_var"`
	RequiredHeaders      map[string]string `json:"required_headers,omitempty"`
	UserAgent            string            `json:"user_agent,omitempty"`
	SupportsSubscription bool              `json:"supports_subscription"`
}

// ProviderState is derived fresh from the Auth Resolver on every request;
// never persisted on its own.
type ProviderState struct {
	ProviderID   string
	EffectiveKey string
	Connected    bool
}

// SelectedModel is the single persisted config record naming which
// provider/model/effort a session should use.
type SelectedModel struct {
	ProviderID      string `json:"provider_id"`
	ModelID         string `json:"model_id"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
}

// ActiveModel is the runtime tuple materialized by joining ProviderState
// with SelectedModel. A turn cannot run without one that is Usable.
type ActiveModel struct {
	ProviderID      string
	ModelID         string
	APIKey          string
	ReasoningEffort string
}

// Usable reports whether this ActiveModel carries a credential (providers
// that require one cannot run a turn without it).
func (m ActiveModel) Usable(requiresKey bool) bool {
	if !requiresKey {
		return true
	}
	return m.APIKey != ""
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// TurnResult
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// LoopErrorKind classifies why run_turn stopped producing normal output.
type LoopErrorKind string

const (
	LoopErrNone                LoopErrorKind = ""
	LoopErrProviderError       LoopErrorKind = "provider_error"
	LoopErrResponseParse       LoopErrorKind = "response_parse_error"
	LoopErrMissingChoices      LoopErrorKind = "response_missing_choices"
	LoopErrUnsupportedProvider LoopErrorKind = "unsupported_provider"
	LoopErrProtocolViolation   LoopErrorKind = "protocol_violation"
	LoopErrStuckLoop           LoopErrorKind = "stuck_loop"
	LoopErrStepLimit           LoopErrorKind = "step_limit"
	LoopErrCancellation        LoopErrorKind = "cancellation"
	LoopErrToolError           LoopErrorKind = "tool_error"
	LoopErrStoreError          LoopErrorKind = "store_error"
)

// TurnResult is the value run_turn returns: a single, self-contained
// description of what happened during one bounded loop execution.
type TurnResult struct {
	Response     string
	Reasoning    string
	ToolCalls    int
	ErrorCount   int
	FilesTouched []string
	ErrorKind    LoopErrorKind
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Completion Guard
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// CompletionOutcome classifies a finished turn for the Completion Guard.
type CompletionOutcome string

const (
	CompletedWithWork    CompletionOutcome = "completed_with_work"
	CompletedWithBlocker CompletionOutcome = "completed_with_blocker"
	InsufficientProgress CompletionOutcome = "insufficient_progress"
)

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Context Store v2 Entities
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

// EventKind identifies the kind of a persisted EventRecord.
type EventKind string

const (
	KindUserTurn      EventKind = "user_turn"
	KindAssistantTurn EventKind = "assistant_turn"
	KindToolEvent     EventKind = "tool_event"
	KindStatusEvent   EventKind = "status_event"
	KindDecisionEvent EventKind = "decision_event"
	KindErrorEvent    EventKind = "error_event"
)

// EventRecord is the on-disk, append-only unit of the Context Store v2
// event log. EventSeq is monotonically increasing within a project.
type EventRecord struct {
	EventSeq  uint64    `json:"event_seq"`
	SessionID string    `json:"session_id"`
	Ts        int64     `json:"ts"`
	Kind      EventKind `json:"kind"`
	Payload   any       `json:"payload"`
}

// Turn is one append-only conversational unit: either the user's message
// or the assistant's (possibly multi-step) response.
type Turn struct {
	Role          string    `json:"role"` // "user" | "assistant"
	Content       string    `json:"content"`
	Reasoning     string    `json:"reasoning,omitempty"`
	ToolCallCount int       `json:"tool_calls_count,omitempty"`
	ErrorCount    int       `json:"error_count,omitempty"`
	FilesTouched  []string  `json:"files_touched,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ContextWindow is the derived, rebuildable in-memory conversation state
// assembled into each outgoing prompt.
type ContextWindow struct {
	MaxChars        int    `json:"max_chars"`
	KeepRecentTurns int    `json:"keep_recent_turns"`
	Turns           []Turn `json:"turns"`
	Title           string `json:"title,omitempty"`
	ProjectPath     string `json:"project_path,omitempty"`
	Summary         string `json:"summary,omitempty"`
}

// Snapshot is the coalesced on-disk form of a ContextWindow.
type Snapshot struct {
	LastAppliedEventSeq uint64        `json:"last_applied_event_seq"`
	WorkingWindow       ContextWindow `json:"working_window"`
	Title               string        `json:"title,omitempty"`
	ProjectPath         string        `json:"project_path,omitempty"`
	DurableFacts        []string      `json:"durable_facts,omitempty"`
}

// ProjectMeta is the contents of contexts-v2/<project_id_hex>/meta.json.
type ProjectMeta struct {
	SchemaVersion   int       `json:"schema_version"`
	ProjectID       uint64    `json:"project_id"`
	ProjectRoot     string    `json:"project_root"`
	CreatedAt       time.Time `json:"created_at"`
	LastCompactedAt time.Time `json:"last_compacted_at,omitempty"`
	IntegrityMode   string    `json:"integrity_mode,omitempty"`
}

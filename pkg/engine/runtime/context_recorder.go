package runtime

import (
	"context"
	"time"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/contextstore"
	"zagent/pkg/logger"
)

// contextRecorder appends completed turns to the Context Store v2 event log
// for the engine's project, independent of the per-session message history
// the SessionStore already keeps. It is best-effort: a recording failure
// never fails the turn that produced it, it only gets logged.
type contextRecorder struct {
	store     *contextstore.Store
	projectID uint64
}

// newContextRecorder opens (or creates) the contexts-v2 directory rooted at
// workspaceRoot. A nil *contextRecorder is a valid no-op value.
func newContextRecorder(workspaceRoot string) *contextRecorder {
	st, err := contextstore.New(workspaceRoot)
	if err != nil {
		logger.Warn("ContextStore", "failed to open context store, recording disabled", map[string]any{"error": err.Error()})
		return nil
	}
	projectID, err := st.EnsureProject(workspaceRoot)
	if err != nil {
		logger.Warn("ContextStore", "failed to ensure project, recording disabled", map[string]any{"error": err.Error()})
		return nil
	}
	return &contextRecorder{store: st, projectID: projectID}
}

// recordTurn appends a user_turn and, when non-empty, a matching
// assistant_turn record for one completed turn.
func (r *contextRecorder) recordTurn(ctx context.Context, sessionID, userContent, assistantContent string, toolCalls, errors int) {
	if r == nil || r.store == nil {
		return
	}

	now := time.Now()
	if userContent != "" {
		rec := api.EventRecord{
			SessionID: sessionID,
			Ts:        now.Unix(),
			Kind:      api.KindUserTurn,
			Payload:   api.Turn{Role: "user", Content: userContent, CreatedAt: now},
		}
		if err := r.store.AppendEvent(ctx, r.projectID, rec); err != nil {
			logger.Warn("ContextStore", "failed to append user_turn", map[string]any{"session_id": sessionID, "error": err.Error()})
		}
	}

	if assistantContent != "" {
		rec := api.EventRecord{
			SessionID: sessionID,
			Ts:        now.Unix(),
			Kind:      api.KindAssistantTurn,
			Payload: api.Turn{
				Role:          "assistant",
				Content:       assistantContent,
				ToolCallCount: toolCalls,
				ErrorCount:    errors,
				CreatedAt:     now,
			},
		}
		if err := r.store.AppendEvent(ctx, r.projectID, rec); err != nil {
			logger.Warn("ContextStore", "failed to append assistant_turn", map[string]any{"session_id": sessionID, "error": err.Error()})
		}
	}
}

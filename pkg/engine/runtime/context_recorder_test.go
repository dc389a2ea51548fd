package runtime

import (
	"context"
	"testing"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/contextstore"
)

func TestContextRecorderRecordTurnAppendsUserAndAssistant(t *testing.T) {
	root := t.TempDir()
	r := newContextRecorder(root)
	if r == nil {
		t.Fatal("expected a non-nil contextRecorder")
	}

	ctx := context.Background()
	r.recordTurn(ctx, "sess-1", "fix the bug", "done, see diff", 2, 0)

	events, err := r.store.ReadAll(r.projectID)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events (user_turn + assistant_turn), got %d", len(events))
	}
	if events[0].Kind != api.KindUserTurn || events[1].Kind != api.KindAssistantTurn {
		t.Fatalf("unexpected event kinds: %v, %v", events[0].Kind, events[1].Kind)
	}

	window, err := contextstore.Reduce(events, "sess-1", "", root)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(window.Turns) != 2 {
		t.Fatalf("expected 2 turns in the reduced window, got %d", len(window.Turns))
	}
	if window.Turns[1].ToolCallCount != 2 {
		t.Errorf("expected tool call count to be recorded, got %d", window.Turns[1].ToolCallCount)
	}
}

func TestContextRecorderRecordTurnSkipsEmptyAssistantContent(t *testing.T) {
	root := t.TempDir()
	r := newContextRecorder(root)
	if r == nil {
		t.Fatal("expected a non-nil contextRecorder")
	}

	r.recordTurn(context.Background(), "sess-1", "hello", "", 0, 0)

	events, err := r.store.ReadAll(r.projectID)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected only the user_turn to be recorded, got %d events", len(events))
	}
}

func TestContextRecorderNilValueIsNoOp(t *testing.T) {
	var r *contextRecorder
	// Must not panic on a nil receiver.
	r.recordTurn(context.Background(), "sess-1", "hello", "hi", 0, 0)
}

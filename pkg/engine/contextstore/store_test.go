package contextstore

import (
	"context"
	"testing"

	"zagent/pkg/engine/api"
)

func TestProjectIDStableForSamePath(t *testing.T) {
	dir := t.TempDir()
	id1, err := ProjectID(dir)
	if err != nil {
		t.Fatalf("ProjectID: %v", err)
	}
	id2, err := ProjectID(dir)
	if err != nil {
		t.Fatalf("ProjectID: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ProjectID not stable: %d != %d", id1, id2)
	}
}

func TestProjectIDDiffersAcrossPaths(t *testing.T) {
	idA, _ := ProjectID(t.TempDir())
	idB, _ := ProjectID(t.TempDir())
	if idA == idB {
		t.Errorf("expected distinct project ids for distinct roots")
	}
}

func userTurnEvent(sessionID, content string) api.EventRecord {
	return api.EventRecord{
		SessionID: sessionID,
		Kind:      api.KindUserTurn,
		Payload:   api.Turn{Role: "user", Content: content},
	}
}

func assistantTurnEvent(sessionID, content string) api.EventRecord {
	return api.EventRecord{
		SessionID: sessionID,
		Kind:      api.KindAssistantTurn,
		Payload:   api.Turn{Role: "assistant", Content: content},
	}
}

func TestAppendAndReduceRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	projectID, err := store.EnsureProject("/some/project")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	ctx := context.Background()
	events := []api.EventRecord{
		userTurnEvent("sess-1", "list the files"),
		assistantTurnEvent("sess-1", "main.go and go.mod"),
		userTurnEvent("sess-1", "read main.go"),
		assistantTurnEvent("sess-1", "here it is"),
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, projectID, e); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	all, err := store.ReadAll(projectID)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	for i, e := range all {
		if e.EventSeq != uint64(i+1) {
			t.Errorf("event %d has seq %d, want %d", i, e.EventSeq, i+1)
		}
	}

	window, err := Reduce(all, "sess-1", "", "/some/project")
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(window.Turns) != 4 {
		t.Fatalf("expected 4 turns in window, got %d", len(window.Turns))
	}
	if window.Turns[0].Content != "list the files" || window.Turns[3].Content != "here it is" {
		t.Errorf("turns not reconstructed in order: %+v", window.Turns)
	}
}

func TestReduceIgnoresOtherSessions(t *testing.T) {
	events := []api.EventRecord{
		{EventSeq: 1, SessionID: "sess-a", Kind: api.KindUserTurn, Payload: api.Turn{Role: "user", Content: "a1"}},
		{EventSeq: 2, SessionID: "sess-b", Kind: api.KindUserTurn, Payload: api.Turn{Role: "user", Content: "b1"}},
		{EventSeq: 3, SessionID: "sess-a", Kind: api.KindAssistantTurn, Payload: api.Turn{Role: "assistant", Content: "a1-reply"}},
		{EventSeq: 4, SessionID: "sess-b", Kind: api.KindAssistantTurn, Payload: api.Turn{Role: "assistant", Content: "b1-reply"}},
	}

	window, err := Reduce(events, "sess-a", "", "/proj")
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(window.Turns) != 2 {
		t.Fatalf("expected 2 turns for sess-a, got %d: %+v", len(window.Turns), window.Turns)
	}
	for _, turn := range window.Turns {
		if turn.Content == "b1" || turn.Content == "b1-reply" {
			t.Errorf("session sess-b content leaked into sess-a window: %+v", turn)
		}
	}
}

func TestReduceDetectsContaminationWithinSession(t *testing.T) {
	events := []api.EventRecord{
		{EventSeq: 1, SessionID: "sess-a", Kind: api.KindUserTurn, Payload: api.Turn{Role: "user", Content: "first"}},
		{EventSeq: 2, SessionID: "sess-a", Kind: api.KindUserTurn, Payload: api.Turn{Role: "user", Content: "second, before first got a reply"}},
	}
	if _, err := Reduce(events, "sess-a", "", "/proj"); err == nil {
		t.Fatal("expected contamination error for two consecutive user_turns without an intervening assistant_turn")
	}
}

func TestCheckGapsDetectsMissingSeq(t *testing.T) {
	events := []api.EventRecord{
		{EventSeq: 1},
		{EventSeq: 3},
	}
	if err := checkGaps(events); err == nil {
		t.Fatal("expected a gap error")
	}
}

func TestCompactProducesSnapshotAndDurableFacts(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	projectID, err := store.EnsureProject("/some/project")
	if err != nil {
		t.Fatalf("EnsureProject: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if err := store.AppendEvent(ctx, projectID, userTurnEvent("sess-1", "question")); err != nil {
			t.Fatalf("AppendEvent user: %v", err)
		}
		if err := store.AppendEvent(ctx, projectID, assistantTurnEvent("sess-1", "answer")); err != nil {
			t.Fatalf("AppendEvent assistant: %v", err)
		}
	}

	snap, err := store.Compact(projectID, "sess-1", "my session", "/some/project")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if len(snap.WorkingWindow.Turns) != defaultKeepRecentTurns {
		t.Errorf("expected window trimmed to %d turns, got %d", defaultKeepRecentTurns, len(snap.WorkingWindow.Turns))
	}
	if len(snap.DurableFacts) == 0 {
		t.Errorf("expected older turns folded into durable facts, got none")
	}
	if snap.LastAppliedEventSeq != 50 {
		t.Errorf("expected last_applied_event_seq 50, got %d", snap.LastAppliedEventSeq)
	}

	reloaded, err := store.LoadSnapshot(projectID)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if reloaded.LastAppliedEventSeq != snap.LastAppliedEventSeq {
		t.Errorf("reloaded snapshot does not match written snapshot")
	}
}

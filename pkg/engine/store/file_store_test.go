package store

import (
	"context"
	"testing"

	"zagent/pkg/engine/api"
)

func TestFileSessionStoreListTitled(t *testing.T) {
	s, err := NewFileSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSessionStore: %v", err)
	}
	ctx := context.Background()

	titled := &api.Session{SessionID: "a", Metadata: map[string]string{"title": "Fix the parser"}}
	untitled := &api.Session{SessionID: "b"}
	if err := s.Put(ctx, "a", titled); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := s.Put(ctx, "b", untitled); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	rows, err := s.ListTitled(ctx)
	if err != nil {
		t.Fatalf("ListTitled: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	byID := map[string]TitledSession{}
	for _, r := range rows {
		byID[r.ID] = r
	}
	if byID["a"].Title != "Fix the parser" {
		t.Errorf("expected title to round-trip, got %q", byID["a"].Title)
	}
	if byID["b"].Title != "" {
		t.Errorf("expected empty title for untitled session, got %q", byID["b"].Title)
	}
}

func TestFileSessionStorePathEscapeRejected(t *testing.T) {
	s, err := NewFileSessionStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSessionStore: %v", err)
	}

	if _, err := s.Get(context.Background(), "../escape"); err == nil {
		t.Fatal("expected path escape to be rejected")
	}
}

package session

import "testing"

func TestDeriveTitleKeepsExistingNonPathTitle(t *testing.T) {
	got := deriveTitle("My Session", "irrelevant")
	if got != "My Session" {
		t.Errorf("expected existing title to be kept, got %q", got)
	}
}

func TestDeriveTitleReplacesPathLikeTitle(t *testing.T) {
	got := deriveTitle("/home/user/project", "please refactor the parser module")
	if got != "please refactor the parser module" {
		t.Errorf("expected derived title from first user message, got %q", got)
	}
}

func TestDeriveTitleCompactsWhitespace(t *testing.T) {
	got := deriveTitle("", "  please   refactor\nthe   parser ")
	if got != "please refactor the parser" {
		t.Errorf("expected whitespace-compacted title, got %q", got)
	}
}

func TestDeriveTitleTruncatesAt80WithEllipsis(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "word "
	}
	got := deriveTitle("", long)
	if len(got) == 0 {
		t.Fatal("expected a non-empty title")
	}
	runes := []rune(got)
	if len(runes) != 81 || runes[80] != '…' {
		t.Errorf("expected an 80-char title with ellipsis suffix, got %q (len %d)", got, len(runes))
	}
}

func TestCanonicalizeProjectPathResolvesRelative(t *testing.T) {
	got, err := canonicalizeProjectPath(".")
	if err != nil {
		t.Fatalf("canonicalizeProjectPath: %v", err)
	}
	if got == "." || got == "" {
		t.Errorf("expected an absolute path, got %q", got)
	}
}

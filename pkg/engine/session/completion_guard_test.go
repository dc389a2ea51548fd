package session

import (
	"testing"

	"zagent/pkg/engine/api"
)

func TestClassifyCompletionWithToolCalls(t *testing.T) {
	got := classifyCompletion(2, nil, "")
	if got != api.CompletedWithWork {
		t.Errorf("expected CompletedWithWork, got %q", got)
	}
}

func TestClassifyCompletionWithResponseText(t *testing.T) {
	got := classifyCompletion(0, nil, "Here is the summary you asked for.")
	if got != api.CompletedWithWork {
		t.Errorf("expected CompletedWithWork, got %q", got)
	}
}

func TestClassifyCompletionBlockerPhraseWins(t *testing.T) {
	got := classifyCompletion(1, []string{"a.go"}, "I cannot modify that file without confirmation.")
	if got != api.CompletedWithBlocker {
		t.Errorf("expected CompletedWithBlocker, got %q", got)
	}
}

func TestClassifyCompletionInsufficientProgress(t *testing.T) {
	got := classifyCompletion(0, nil, "   ")
	if got != api.InsufficientProgress {
		t.Errorf("expected InsufficientProgress, got %q", got)
	}
}

func TestLooksLikeImplementationIntent(t *testing.T) {
	if !looksLikeImplementationIntent("please fix the bug in parser.go") {
		t.Error("expected implementation intent to be detected")
	}
	if looksLikeImplementationIntent("what does this function do?") {
		t.Error("expected no implementation intent for a question")
	}
}

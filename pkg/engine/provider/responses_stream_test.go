package provider

import (
	"testing"

	"zagent/pkg/engine/api"
)

func TestToResponsesInputFoldsSystemIntoInstructions(t *testing.T) {
	messages := []api.LLMMessage{
		{Role: "system", Content: "be concise"},
		{Role: "user", Content: "what files are here"},
		{Role: "assistant", Content: "", ToolCalls: []api.LLMToolCall{
			{ID: "call_1", Name: "ls", Args: `{"path":"."}`},
		}},
		{Role: "tool", Content: "main.go", ToolCallID: "call_1"},
		{Role: "assistant", Content: "main.go is here."},
	}

	instructions, input := toResponsesInput(messages)
	if instructions != "be concise" {
		t.Errorf("expected system content folded into instructions, got %q", instructions)
	}
	if len(input) != 4 {
		t.Fatalf("expected 4 input items (user, function_call, tool-as-user, assistant), got %d: %+v", len(input), input)
	}
	if input[0].Role != "user" || input[0].Content[0].Type != "input_text" {
		t.Errorf("first input item should be a user message, got %+v", input[0])
	}
	if input[1].Type != "function_call" || input[1].Name != "ls" {
		t.Errorf("second input item should be the function_call, got %+v", input[1])
	}
	if input[2].Role != "user" || input[2].Content[0].Text != "[tool]\nmain.go" {
		t.Errorf("tool message should map to a prefixed user message, got %+v", input[2])
	}
	if input[3].Role != "assistant" || input[3].Content[0].Type != "output_text" {
		t.Errorf("final assistant message should use output_text, got %+v", input[3])
	}
}

func TestToResponsesToolsMarksStrict(t *testing.T) {
	tools := []api.ToolSchema{{Name: "grep", Description: "search text"}}
	out := toResponsesTools(tools)
	if len(out) != 1 || !out[0].Strict || out[0].Type != "function" {
		t.Errorf("unexpected responses tool shape: %+v", out)
	}
}

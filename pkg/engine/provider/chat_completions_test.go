package provider

import (
	"testing"

	"zagent/pkg/engine/api"
)

func TestToChatMessagesPreservesToolCallShape(t *testing.T) {
	messages := []api.LLMMessage{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "list files"},
		{
			Role: "assistant",
			ToolCalls: []api.LLMToolCall{
				{ID: "call_1", Name: "ls", Args: `{"path":"."}`},
			},
		},
		{Role: "tool", Content: "main.go\ngo.mod", ToolCallID: "call_1"},
	}

	out := toChatMessages(messages)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	if out[2].ToolCalls[0].Function.Name != "ls" {
		t.Errorf("tool call function name not preserved: %+v", out[2].ToolCalls[0])
	}
	if string(out[2].ToolCalls[0].Function.Arguments) != `"{\"path\":\".\"}"` {
		t.Errorf("tool call arguments not JSON-string-encoded, got %q", out[2].ToolCalls[0].Function.Arguments)
	}
	if out[3].ToolCallID != "call_1" {
		t.Errorf("tool message missing tool_call_id, got %+v", out[3])
	}
}

func TestChatFuncCallArgsAsStringHandlesBothShapes(t *testing.T) {
	asString := chatFuncCall{Arguments: []byte(`"{\"path\":\".\"}"`)}
	if got := asString.argsAsString(); got != `{"path":"."}` {
		t.Errorf("string-shaped arguments: got %q", got)
	}

	asRawObject := chatFuncCall{Arguments: []byte(`{"path":"."}`)}
	if got := asRawObject.argsAsString(); got != `{"path":"."}` {
		t.Errorf("object-shaped arguments: got %q", got)
	}
}

func TestToChatToolsMapsToolSchema(t *testing.T) {
	tools := []api.ToolSchema{
		{Name: "read_file", Description: "reads a file", Parameters: map[string]any{"type": "object"}},
	}
	out := toChatTools(tools)
	if len(out) != 1 || out[0].Type != "function" || out[0].Function.Name != "read_file" {
		t.Errorf("unexpected chat tool shape: %+v", out)
	}
}

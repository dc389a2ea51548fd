package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/runtime"
	"zagent/pkg/logger"
)

// responsesRequest is the Responses-stream wire shape (§4.2). It folds the
// conversation into an `instructions` string (system messages) plus an
// `input` array of typed content blocks, and always disables parallel tool
// calls and server-side storage.
type responsesRequest struct {
	Model             string          `json:"model"`
	Instructions      string          `json:"instructions,omitempty"`
	Input             []responsesItem `json:"input"`
	Tools             []responsesTool `json:"tools,omitempty"`
	ToolChoice        string          `json:"tool_choice,omitempty"`
	ParallelToolCalls bool            `json:"parallel_tool_calls"`
	Store             bool            `json:"store"`
	Stream            bool            `json:"stream"`
	Include           []string        `json:"include,omitempty"`
}

type responsesItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []responsesContent `json:"content,omitempty"`

	// Present only on function_call items reconstructed from prior
	// assistant tool calls.
	CallID string `json:"call_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Output string `json:"output,omitempty"`
}

type responsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesTool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
	Strict      bool   `json:"strict"`
}

func toResponsesTools(tools []api.ToolSchema) []responsesTool {
	out := make([]responsesTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, responsesTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Strict:      true,
		})
	}
	return out
}

// toResponsesInput maps the LLMMessage history to the Responses-stream input
// array. System messages are folded into instructions by the caller rather
// than appearing here. Tool-role messages become user messages prefixed
// with "[tool]\n" since the Responses protocol has no first-class tool-role
// turn in the simplified input-array form this client uses.
func toResponsesInput(messages []api.LLMMessage) (instructions string, input []responsesItem) {
	var instr strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if instr.Len() > 0 {
				instr.WriteString("\n\n")
			}
			instr.WriteString(msg.Content)
		case "assistant":
			textType := "output_text"
			if msg.Content != "" {
				input = append(input, responsesItem{
					Type:    "message",
					Role:    "assistant",
					Content: []responsesContent{{Type: textType, Text: msg.Content}},
				})
			}
			for _, tc := range msg.ToolCalls {
				input = append(input, responsesItem{
					Type:   "function_call",
					CallID: tc.ID,
					Name:   tc.Name,
					Output: tc.Args,
				})
			}
		case "tool":
			input = append(input, responsesItem{
				Type:    "message",
				Role:    "user",
				Content: []responsesContent{{Type: "input_text", Text: "[tool]\n" + msg.Content}},
			})
		default: // "user"
			input = append(input, responsesItem{
				Type:    "message",
				Role:    "user",
				Content: []responsesContent{{Type: "input_text", Text: msg.Content}},
			})
		}
	}
	return instr.String(), input
}

// responsesEvent is the minimal envelope needed to dispatch on an SSE
// event's type and extract the fields each event kind carries.
type responsesEvent struct {
	Type string `json:"type"`
	Item struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"item"`
	Delta string `json:"delta"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func completeResponsesStream(ctx context.Context, client *http.Client, url, bearer string, extraHeaders map[string]string, model string, req runtime.LLMRequest, reasoningEffort string) (runtime.LLMStream, error) {
	instructions, input := toResponsesInput(req.Messages)

	payload := responsesRequest{
		Model:             model,
		Instructions:      instructions,
		Input:             input,
		ParallelToolCalls: false,
		Store:             false,
		Stream:            true,
		Include:           []string{"reasoning.encrypted_content"},
	}
	if len(req.Tools) > 0 {
		payload.Tools = toResponsesTools(req.Tools)
		payload.ToolChoice = "auto"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal responses-stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build responses-stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Accept-Encoding", "identity")
	for k, v := range extraHeaders {
		httpReq.Header.Set(k, v)
	}

	logger.Info("Provider", "sending responses-stream request", map[string]interface{}{
		"url": url, "model": model, "input_items": len(input),
	})

	resp, err := client.Do(httpReq)
	if err != nil {
		SetLastError(ctx, err.Error())
		return nil, &ProviderError{Provider: url, Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		detail := excerpt(strings.TrimSpace(string(raw)), 300)
		SetLastError(ctx, detail)
		logger.Error("Provider", "responses-stream returned error", map[string]interface{}{
			"status": resp.StatusCode, "detail": detail,
		})
		return nil, &ProviderError{Provider: url, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, detail)}
	}

	return newResponsesStream(resp.Body), nil
}

type responsesStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	mu   sync.Mutex
	done bool

	pendingName string
	pendingArgs strings.Builder
	seededArgs  bool
}

func newResponsesStream(body io.ReadCloser) *responsesStream {
	return &responsesStream{body: body, reader: bufio.NewReader(body)}
}

func (s *responsesStream) Recv(ctx context.Context) (runtime.LLMChunk, error) {
	for {
		select {
		case <-ctx.Done():
			return runtime.LLMChunk{}, ctx.Err()
		default:
		}

		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			return runtime.LLMChunk{}, io.EOF
		}
		s.mu.Unlock()

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.mu.Lock()
				s.done = true
				s.mu.Unlock()
				return runtime.LLMChunk{}, io.EOF
			}
			return runtime.LLMChunk{}, err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return runtime.LLMChunk{}, io.EOF
		}

		var ev responsesEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return runtime.LLMChunk{}, &ResponseParseError{Detail: excerpt(data, 300)}
		}

		if ev.Error != nil {
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return runtime.LLMChunk{}, &ProviderError{Detail: fmt.Sprintf("%s: %s", ev.Error.Code, ev.Error.Message)}
		}

		switch {
		case ev.Item.Type == "function_call":
			s.mu.Lock()
			s.pendingName = ev.Item.Name
			s.pendingArgs.Reset()
			s.seededArgs = false
			s.mu.Unlock()
			continue

		case strings.HasSuffix(ev.Type, "function_call_arguments.delta"):
			s.mu.Lock()
			if !s.seededArgs {
				s.pendingArgs.Reset()
				s.seededArgs = true
			}
			s.pendingArgs.WriteString(ev.Delta)
			s.mu.Unlock()
			if ev.Delta != "" {
				return runtime.LLMChunk{ToolArgDelta: ev.Delta}, nil
			}
			continue

		case strings.HasSuffix(ev.Type, "function_call_arguments.done"):
			s.mu.Lock()
			name := s.pendingName
			args := s.pendingArgs.String()
			s.pendingName = ""
			s.pendingArgs.Reset()
			s.seededArgs = false
			s.mu.Unlock()
			if name == "" {
				continue
			}
			return runtime.LLMChunk{ToolCall: &api.LLMToolCall{Name: name, Args: args}}, nil

		case strings.HasSuffix(ev.Type, ".delta"):
			if ev.Delta != "" {
				return runtime.LLMChunk{Delta: ev.Delta}, nil
			}
			continue

		case ev.Type == "response.completed" || ev.Type == "response.done":
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return runtime.LLMChunk{FinishReason: "stop"}, nil

		default:
			continue
		}
	}
}

func (s *responsesStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

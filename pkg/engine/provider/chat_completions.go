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

// chatCompletionsRequest is the Chat-Completions wire shape (§4.2).
type chatCompletionsRequest struct {
	Model           string     `json:"model"`
	Messages        []chatMsg  `json:"messages"`
	Stream          bool       `json:"stream"`
	Tools           []chatTool `json:"tools,omitempty"`
	ToolChoice      string     `json:"tool_choice,omitempty"`
	ReasoningEffort string     `json:"reasoning_effort,omitempty"`
	MaxTokens       int        `json:"max_tokens,omitempty"`
}

type chatTool struct {
	Type     string   `json:"type"`
	Function chatFunc `json:"function"`
}

type chatFunc struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type chatMsg struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function chatFuncCall `json:"function"`
}

type chatFuncCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// argsAsString serializes Arguments to its JSON-string form regardless of
// whether the upstream sent a string or a raw JSON value (§4.2's parser
// note: "Arguments that arrive as a JSON value... must be serialized").
func (f chatFuncCall) argsAsString() string {
	var asString string
	if err := json.Unmarshal(f.Arguments, &asString); err == nil {
		return asString
	}
	return string(f.Arguments)
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content,omitempty"`
			ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *struct {
		ProviderName string `json:"provider_name"`
		Code         any    `json:"code"`
		Message      string `json:"message"`
		Type         string `json:"type"`
	} `json:"error,omitempty"`
}

func toChatTools(tools []api.ToolSchema) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, chatTool{Type: "function", Function: chatFunc{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}})
	}
	return out
}

func toChatMessages(messages []api.LLMMessage) []chatMsg {
	out := make([]chatMsg, 0, len(messages))
	for _, msg := range messages {
		m := chatMsg{Role: msg.Role, Content: msg.Content}
		if msg.Role == "tool" {
			m.ToolCallID = msg.ToolCallID
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatFuncCall{
					Name:      tc.Name,
					Arguments: json.RawMessage(strconvQuoteIfNeeded(tc.Args)),
				},
			})
		}
		out = append(out, m)
	}
	return out
}

// strconvQuoteIfNeeded passes already-JSON argument strings through
// untouched for the request we serialize ourselves (they're always a
// plain string we generated), so this is just a pass-through guard for
// empty values.
func strconvQuoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// completeChatCompletions performs a single Chat-Completions call and
// returns a streaming LLMStream over its SSE body.
func completeChatCompletions(ctx context.Context, client *http.Client, url, apiKey string, extraHeaders map[string]string, model string, req runtime.LLMRequest, reasoningEffort string) (runtime.LLMStream, error) {
	payload := chatCompletionsRequest{
		Model:           model,
		Messages:        toChatMessages(req.Messages),
		Stream:          true,
		ReasoningEffort: reasoningEffort,
	}
	if req.MaxTokens > 0 {
		payload.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		payload.Tools = toChatTools(req.Tools)
		payload.ToolChoice = "auto"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat-completions request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat-completions request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	if httpReq.Header.Get("Accept-Encoding") == "" {
		httpReq.Header.Set("Accept-Encoding", "identity")
	}
	for k, v := range extraHeaders {
		httpReq.Header.Set(k, v)
	}

	logger.Info("Provider", "sending chat-completions request", map[string]interface{}{
		"url": url, "model": model, "message_count": len(payload.Messages),
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
		logger.Error("Provider", "chat-completions returned error", map[string]interface{}{
			"status": resp.StatusCode, "detail": detail,
		})
		return nil, &ProviderError{Provider: url, Detail: fmt.Sprintf("status %d: %s", resp.StatusCode, detail)}
	}

	return newChatStream(resp.Body), nil
}

type chatStream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	mu    sync.Mutex
	queue []runtime.LLMChunk
	done  bool

	builders map[int]*chatToolBuilder
}

type chatToolBuilder struct {
	id   string
	name string
	args strings.Builder
}

func newChatStream(body io.ReadCloser) *chatStream {
	return &chatStream{body: body, reader: bufio.NewReader(body), builders: make(map[int]*chatToolBuilder)}
}

func (s *chatStream) Recv(ctx context.Context) (runtime.LLMChunk, error) {
	s.mu.Lock()
	if len(s.queue) > 0 {
		ch := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return ch, nil
	}
	if s.done {
		s.mu.Unlock()
		return runtime.LLMChunk{}, io.EOF
	}
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return runtime.LLMChunk{}, ctx.Err()
		default:
		}

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

		firstNonSpace := strings.TrimSpace(data)
		if firstNonSpace == "" || (firstNonSpace[0] != '{' && firstNonSpace[0] != '[') {
			return runtime.LLMChunk{}, &ResponseParseError{Detail: excerpt(data, 300)}
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}

		if chunk.Error != nil {
			detail := fmt.Sprintf("%s/%v: %s (%s)", chunk.Error.ProviderName, chunk.Error.Code, chunk.Error.Message, chunk.Error.Type)
			s.mu.Lock()
			s.done = true
			s.mu.Unlock()
			return runtime.LLMChunk{}, &ProviderError{Detail: detail}
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		finish := chunk.Choices[0].FinishReason

		if len(delta.ToolCalls) > 0 {
			var argDelta string
			s.mu.Lock()
			for _, tc := range delta.ToolCalls {
				b := s.builders[tc.Index]
				if b == nil {
					b = &chatToolBuilder{}
					s.builders[tc.Index] = b
				}
				if tc.ID != "" {
					b.id = tc.ID
				}
				if tc.Function.Name != "" {
					b.name = tc.Function.Name
				}
				if args := tc.Function.argsAsString(); args != "" {
					b.args.WriteString(args)
					argDelta += args
				}
			}
			s.mu.Unlock()
			if argDelta != "" {
				return runtime.LLMChunk{ToolArgDelta: argDelta}, nil
			}
		}

		if delta.Content != "" {
			return runtime.LLMChunk{Delta: delta.Content}, nil
		}

		if finish != "" {
			s.mu.Lock()
			if finish == "tool_calls" {
				maxIdx := -1
				for i := range s.builders {
					if i > maxIdx {
						maxIdx = i
					}
				}
				for i := 0; i <= maxIdx; i++ {
					b := s.builders[i]
					if b == nil || b.name == "" {
						continue
					}
					s.queue = append(s.queue, runtime.LLMChunk{
						ToolCall: &api.LLMToolCall{ID: b.id, Name: b.name, Args: b.args.String()},
					})
				}
				s.builders = make(map[int]*chatToolBuilder)
			}
			s.queue = append(s.queue, runtime.LLMChunk{FinishReason: finish})
			ch := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ch, nil
		}
	}
}

func (s *chatStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

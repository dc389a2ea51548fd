package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/auth"
	"zagent/pkg/engine/store"
	"zagent/pkg/engine/tools"
	"zagent/pkg/logger"
)

// titledLister is satisfied by store.FileSessionStore's ListTitled, used
// to fetch every session's derived title in one pass rather than one
// SessionStore.Get per row.
type titledLister interface {
	ListTitled(ctx context.Context) ([]store.TitledSession, error)
}

const (
	pongWait  = 45 * time.Second
	writeWait = 10 * time.Second
)

// client is one WebSocket connection's Session entity (§4.4): {client_id,
// project_path?, context_window (delegated to the engine session),
// active_model?}. Mutated only by inbound messages and loop output,
// destroyed on disconnect.
type client struct {
	manager *Manager
	conn    *websocket.Conn
	send    chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	id string

	mu          sync.Mutex
	projectPath string
	workspace   string
	sessionID   string // api.Engine session id, also the contextstore session id
	activeModel api.ActiveModel
	readTool    *tools.ReadFileTool
	writeTool   *tools.WriteFileTool
}

func newClient(m *Manager, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		manager:     m,
		conn:        conn,
		send:        make(chan []byte, 64),
		ctx:         ctx,
		cancel:      cancel,
		id:          uuid.NewString(),
		activeModel: m.DefaultModel,
	}
}

func (c *client) run() {
	defer c.close()
	go c.writeLoop()

	c.emit(newOutbound("connected").with("client_id", c.id))
	c.readLoop()
}

func (c *client) close() {
	c.cancel()
	close(c.send)
	_ = c.conn.Close()
}

func (c *client) readLoop() {
	c.conn.SetReadLimit(maxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			// Binary frames, ping, and pong are consumed at the frame layer
			// and never surfaced to the JSON handler (§6).
			continue
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			c.emit(newOutbound("error").with("content", "Invalid JSON"))
			continue
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.emit(newOutbound("error").with("content", "Invalid JSON"))
			continue
		}

		c.dispatch(msg)
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (c *client) emit(o outbound) {
	data, err := o.marshal()
	if err != nil {
		logger.Warn("Session", "failed to marshal outbound message", map[string]any{"error": err.Error()})
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

func (c *client) dispatch(msg inboundMessage) {
	switch msg.Type {
	case "set_project":
		c.handleSetProject(msg)
	case "list_dir":
		c.handleListDir(msg)
	case "user_input":
		go c.handleUserInput(msg)
	case "read_file":
		c.handleReadFile(msg)
	case "write_file":
		c.handleWriteFile(msg)
	case "list_sessions":
		c.handleListSessions()
	case "load_session":
		c.handleLoadSession(msg)
	case "rename_session":
		c.handleRenameSession(msg)
	case "get_model_info":
		c.handleGetModelInfo()
	case "list_models":
		c.handleListModels()
	case "set_model":
		c.handleSetModel(msg)
	default:
		c.emit(newOutbound("error").with("content", fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Project / filesystem
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (c *client) handleSetProject(msg inboundMessage) {
	canonical, err := canonicalizeProjectPath(msg.Path)
	if err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}
	if info, err := os.Stat(canonical); err != nil || !info.IsDir() {
		c.emit(newOutbound("error").with("content", fmt.Sprintf("not a directory: %s", canonical)))
		return
	}

	c.mu.Lock()
	c.projectPath = canonical
	c.workspace = canonical
	c.readTool = tools.NewReadFileTool(canonical)
	c.writeTool = tools.NewWriteFileTool(canonical)
	c.mu.Unlock()

	if c.manager.ContextStore != nil {
		if _, err := c.manager.ContextStore.EnsureProject(canonical); err != nil {
			logger.Warn("Session", "failed to ensure contextstore project", map[string]any{"error": err.Error()})
		}
	}

	files := c.listEntries(".")
	c.emit(newOutbound("project_set").
		with("project_path", canonical).
		with("files", files))
}

func (c *client) handleListDir(msg inboundMessage) {
	c.emit(newOutbound("dir_list").
		with("path", msg.Path).
		with("entries", c.listEntries(msg.Path)))
}

func (c *client) listEntries(path string) []string {
	c.mu.Lock()
	workspace := c.workspace
	c.mu.Unlock()
	if workspace == "" {
		return nil
	}

	if path == "" {
		path = "."
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(workspace, target)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil
	}

	var dirs []string
	if filepath.Clean(target) != filepath.Clean(workspace) {
		dirs = append(dirs, "..")
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs
}

func (c *client) handleReadFile(msg inboundMessage) {
	c.mu.Lock()
	t := c.readTool
	c.mu.Unlock()
	if t == nil {
		c.emit(newOutbound("error").with("content", "no project set"))
		return
	}

	result, err := t.Execute(c.ctx, api.Args{"path": msg.Path})
	if err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}
	if result.Status != "success" {
		c.emit(newOutbound("error").with("content", result.Error))
		return
	}
	c.emit(newOutbound("file_content").with("path", msg.Path).with("content", result.Content))
}

func (c *client) handleWriteFile(msg inboundMessage) {
	c.mu.Lock()
	t := c.writeTool
	c.mu.Unlock()
	if t == nil {
		c.emit(newOutbound("error").with("content", "no project set"))
		return
	}

	result, err := t.Execute(c.ctx, api.Args{"path": msg.Path, "content": msg.Content})
	if err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}
	if result.Status != "success" {
		c.emit(newOutbound("error").with("content", result.Error))
		return
	}
	c.emit(newOutbound("file_saved").with("path", msg.Path))
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Turn enqueue (§4.4 "Turn enqueue protocol")
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func stripANSI(s string) string { return ansiEscape.ReplaceAllString(s, "") }

func (c *client) handleUserInput(msg inboundMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	c.mu.Lock()
	if c.sessionID == "" {
		sessionID, err := c.manager.Engine.StartSession(c.ctx, api.StartOptions{ApprovalMode: api.ModeAuto})
		if err != nil {
			c.mu.Unlock()
			c.emit(newOutbound("error").with("content", err.Error()))
			return
		}
		c.sessionID = sessionID
	}
	sessionID := c.sessionID
	model := c.activeModel
	c.mu.Unlock()

	c.emit(newOutbound("status").with("content", "Running agent..."))

	if !model.Usable(true) {
		c.emit(newOutbound("error").with("content", "no active model configured"))
		return
	}

	// Serialize model-run turns across every connected client (§4.4 step 3):
	// the remote provider is the contended resource.
	c.manager.modelMu.Lock()
	defer c.manager.modelMu.Unlock()

	implementationIntent := looksLikeImplementationIntent(text)
	turnInput := text
	for attempt := 0; ; attempt++ {
		final, hasFinal, err := c.runOneTurn(sessionID, turnInput)
		if err != nil {
			c.emit(newOutbound("error").with("content", err.Error()))
			return
		}
		if !hasFinal {
			return
		}

		content, toolCalls, filesTouched := c.emitFinalAssistantOutput(final)
		outcome := classifyCompletion(toolCalls, filesTouched, content)

		if outcome != api.InsufficientProgress || !implementationIntent {
			break
		}
		if attempt >= completionRetryBudget {
			c.emit(newOutbound("error").with("content", "reliability failure: no progress after corrective retries"))
			break
		}
		c.emit(newOutbound("status").with("content", "No progress detected, retrying with a corrective prompt..."))
		turnInput = correctiveReprompt
	}

	c.maybeDeriveTitle(sessionID)
}

// runOneTurn sends one message to the engine and drains its event stream,
// relaying each micro-step as a timeline assistant_output and returning the
// terminal `done` event, if the stream produced one.
func (c *client) runOneTurn(sessionID, text string) (final api.Event, hasFinal bool, err error) {
	stream, err := c.manager.Engine.Send(c.ctx, sessionID, text)
	if err != nil {
		return api.Event{}, false, err
	}
	defer stream.Close()

	for {
		ev, err := stream.Recv(c.ctx)
		if err != nil {
			if err != io.EOF {
				return api.Event{}, false, err
			}
			break
		}
		c.streamTimelineEvent(ev)
		if ev.Type == api.EventDone {
			final = ev
			hasFinal = true
		}
	}
	return final, hasFinal, nil
}

// maybeDeriveTitle persists a title derived from the first user turn once a
// session has none, or has one that still looks like a raw path (§4.3).
func (c *client) maybeDeriveTitle(sessionID string) {
	session, err := c.manager.SessionStore.Get(c.ctx, sessionID)
	if err != nil || len(session.Messages) == 0 {
		return
	}
	existing := ""
	if session.Metadata != nil {
		existing = session.Metadata["title"]
	}
	if existing != "" && !looksLikeAbsolutePath(existing) {
		return
	}

	firstUser := ""
	for _, m := range session.Messages {
		if m.Role == "user" {
			firstUser = m.Content
			break
		}
	}
	title := deriveTitle(existing, firstUser)
	if title == "" || title == existing {
		return
	}

	if session.Metadata == nil {
		session.Metadata = make(map[string]string)
	}
	session.Metadata["title"] = title
	if err := c.manager.SessionStore.Put(c.ctx, sessionID, session); err != nil {
		logger.Warn("Session", "failed to persist derived title", map[string]any{"error": err.Error()})
		return
	}
	c.emit(newOutbound("session_title_updated").with("id", sessionID).with("title", title))
}

// streamTimelineEvent maps an engine micro-step event onto the streamed,
// kind-tagged assistant_output shape (§4.4 step 7).
func (c *client) streamTimelineEvent(ev api.Event) {
	switch ev.Type {
	case api.EventDelta:
		if ev.Delta != nil {
			c.emit(newOutbound("assistant_output").with("kind", "status").with("content", stripANSI(ev.Delta.Text)))
		}
	case api.EventThinking:
		if ev.Thinking != nil {
			c.emit(newOutbound("assistant_output").with("kind", "thinking").with("content", stripANSI(ev.Thinking.Message)))
		}
	case api.EventToolCall:
		if ev.ToolCall != nil {
			c.emit(newOutbound("assistant_output").with("kind", "tool").with("content", stripANSI(ev.ToolCall.ToolName)))
		}
	case api.EventToolResult:
		if ev.ToolResult != nil {
			c.emit(newOutbound("assistant_output").with("kind", "tool").with("content", stripANSI(ev.ToolResult.Result.Content)))
		}
	case api.EventPlan:
		c.emit(newOutbound("assistant_output").with("kind", "event").with("content", "plan updated"))
	case api.EventError:
		if ev.Error != nil {
			c.emit(newOutbound("assistant_output").with("kind", "event").with("content", stripANSI(ev.Error.Message)))
		}
	}
}

// emitFinalAssistantOutput emits the final full assistant_output shape and
// returns the evidence the Completion Guard classifies the turn on.
func (c *client) emitFinalAssistantOutput(final api.Event) (content string, toolCalls int, filesTouched []string) {
	reason := ""
	if final.Done != nil {
		reason = final.Done.Reason
	}

	session, err := c.manager.SessionStore.Get(c.ctx, c.currentSessionID())
	errCount := 0
	if err == nil && len(session.Messages) > 0 {
		last := session.Messages[len(session.Messages)-1]
		if last.Role == "assistant" {
			content = last.Content
			toolCalls = len(last.ToolCalls)
		}
	}

	c.emit(newOutbound("assistant_output").
		with("content", content).
		with("reasoning", "").
		with("command_output", "").
		with("tool_output", reason).
		with("tool_calls", toolCalls).
		with("error_count", errCount).
		with("files_touched", filesTouched))

	return content, toolCalls, filesTouched
}

func (c *client) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Sessions listing / loading / renaming
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (c *client) handleListSessions() {
	infos, err := c.manager.Engine.ListSessions(c.ctx)
	if err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })

	titles := map[string]string{}
	if lister, ok := c.manager.SessionStore.(titledLister); ok {
		if titled, err := lister.ListTitled(c.ctx); err == nil {
			for _, t := range titled {
				titles[t.ID] = t.Title
			}
		}
	}

	type entry struct {
		ID        string `json:"id"`
		Title     string `json:"title,omitempty"`
		Updated   string `json:"updated"`
		TurnCount int    `json:"turn_count"`
	}
	list := make([]entry, 0, len(infos))
	for _, info := range infos {
		title, ok := titles[info.SessionID]
		if !ok {
			if s, err := c.manager.SessionStore.Get(c.ctx, info.SessionID); err == nil && s.Metadata != nil {
				title = s.Metadata["title"]
			}
		}
		list = append(list, entry{
			ID:        info.SessionID,
			Title:     title,
			Updated:   info.UpdatedAt.Format(time.RFC3339),
			TurnCount: info.MessageCount,
		})
	}
	c.emit(newOutbound("recent_sessions").with("sessions", list))
}

func (c *client) handleLoadSession(msg inboundMessage) {
	info, err := c.manager.Engine.GetSession(c.ctx, msg.ID)
	if err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}
	session, err := c.manager.SessionStore.Get(c.ctx, msg.ID)
	if err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}

	c.mu.Lock()
	c.sessionID = msg.ID
	c.mu.Unlock()

	title := ""
	if session.Metadata != nil {
		title = session.Metadata["title"]
	}

	c.emit(newOutbound("session_loaded").
		with("id", info.SessionID).
		with("title", title).
		with("turns", session.Messages).
		with("project_path", c.currentProjectPath()))
}

func (c *client) currentProjectPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectPath
}

func (c *client) handleRenameSession(msg inboundMessage) {
	title := strings.TrimSpace(msg.Title)
	if title == "" {
		c.emit(newOutbound("error").with("content", "title must not be empty"))
		return
	}

	session, err := c.manager.SessionStore.Get(c.ctx, msg.ID)
	if err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}
	if session.Metadata == nil {
		session.Metadata = make(map[string]string)
	}
	session.Metadata["title"] = title
	session.UpdatedAt = time.Now()

	if err := c.manager.SessionStore.Put(c.ctx, msg.ID, session); err != nil {
		c.emit(newOutbound("error").with("content", err.Error()))
		return
	}

	c.emit(newOutbound("session_title_updated").with("id", msg.ID).with("title", title))
}

// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
// Model info
// ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━

func (c *client) handleGetModelInfo() {
	c.mu.Lock()
	model := c.activeModel
	c.mu.Unlock()

	c.emit(newOutbound("model_info").
		with("provider_id", model.ProviderID).
		with("model_id", model.ModelID).
		with("usable", model.Usable(true)))
}

func (c *client) handleListModels() {
	if c.manager.Registry == nil {
		c.emit(newOutbound("model_options").with("providers", []any{}))
		return
	}

	type option struct {
		ProviderID  string `json:"provider_id"`
		DisplayName string `json:"display_name"`
		Connected   bool   `json:"connected"`
	}
	var options []option
	for _, id := range []string{"openai", "github-copilot", "openai-compatible"} {
		spec, ok := c.manager.Registry.Get(id)
		if !ok {
			continue
		}
		connected := false
		if cred, err := auth.Resolve(spec); err == nil {
			connected = cred.Key != ""
		}
		options = append(options, option{ProviderID: spec.ProviderID, DisplayName: spec.DisplayName, Connected: connected})
	}
	c.emit(newOutbound("model_options").with("providers", options))
}

func (c *client) handleSetModel(msg inboundMessage) {
	if msg.ProviderID == "" || msg.ModelID == "" {
		c.emit(newOutbound("error").with("content", "provider_id and model_id are required"))
		return
	}

	spec, ok := c.manager.Registry.Get(msg.ProviderID)
	if !ok {
		c.emit(newOutbound("error").with("content", fmt.Sprintf("unknown provider %q", msg.ProviderID)))
		return
	}
	cred, err := auth.Resolve(spec)
	if err != nil || cred.Key == "" {
		c.emit(newOutbound("error").with("content", fmt.Sprintf("provider %q has no usable credential", msg.ProviderID)))
		return
	}

	c.mu.Lock()
	c.activeModel = api.ActiveModel{
		ProviderID: msg.ProviderID,
		ModelID:    msg.ModelID,
		APIKey:     cred.Key,
	}
	c.mu.Unlock()

	c.handleGetModelInfo()
}

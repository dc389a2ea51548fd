// Package session implements the Session Manager (§4.4): one Session per
// client WebSocket connection, routing inbound protocol messages to the
// engine and streaming outbound events back.
package session

import (
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"zagent/pkg/engine/api"
	"zagent/pkg/engine/contextstore"
	"zagent/pkg/engine/provider"
	"zagent/pkg/engine/store"
	"zagent/pkg/logger"
)

const (
	maxPayloadBytes = 1 << 20
)

// Manager owns the upgrader and the dependencies every Client needs to
// service the inbound message catalog.
type Manager struct {
	Engine       api.Engine
	SessionStore store.SessionStore
	ContextStore *contextstore.Store
	Registry     *provider.Registry
	DefaultModel api.ActiveModel

	upgrader websocket.Upgrader

	// modelMu serializes model-run turns across every connected client: the
	// remote provider is the contended resource, and serializing keeps each
	// turn's token-output stream unambiguous (§4.4 turn enqueue step 3).
	modelMu sync.Mutex
}

// NewManager wires a Manager from the engine's existing dependencies plus
// the provider registry used to resolve ActiveModel/credential info for
// get_model_info/list_models/set_model.
func NewManager(engine api.Engine, sessionStore store.SessionStore, ctxStore *contextstore.Store, registry *provider.Registry, defaultModel api.ActiveModel) *Manager {
	return &Manager{
		Engine:       engine,
		SessionStore: sessionStore,
		ContextStore: ctxStore,
		Registry:     registry,
		DefaultModel: defaultModel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the client's read/write loops
// until it disconnects.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Session", "websocket upgrade failed", map[string]any{"error": err.Error()})
		return
	}

	c := newClient(m, conn)
	c.run()
}

// canonicalizeProjectPath resolves symlinks and `..` segments so the same
// project always maps to the same contextstore project id (§4.3).
func canonicalizeProjectPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return filepath.Clean(abs), nil
}

// deriveTitle builds a session title from a turn's first user message when
// no title is set yet, or the existing one looks like a raw path (§4.3).
func deriveTitle(existing, firstUserMessage string) string {
	if existing != "" && !looksLikeAbsolutePath(existing) {
		return existing
	}
	compacted := strings.Join(strings.Fields(firstUserMessage), " ")
	if compacted == "" {
		return existing
	}
	const max = 80
	if len(compacted) <= max {
		return compacted
	}
	return compacted[:max] + "…"
}

func looksLikeAbsolutePath(s string) bool {
	return filepath.IsAbs(s)
}

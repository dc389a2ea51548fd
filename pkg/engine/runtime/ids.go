package runtime

import "github.com/google/uuid"

// generateTurnID returns a new unique turn identifier. uuid over a
// timestamp: two turns started in the same process tick must not collide.
func generateTurnID() string {
	return "turn_" + uuid.NewString()
}

// generateRequestID returns a new unique tool-call/approval request id.
func generateRequestID() string {
	return "req_" + uuid.NewString()
}

// generateSessionID returns a new unique session identifier.
func generateSessionID() string {
	return "session_" + uuid.NewString()
}

package provider

import "context"

// lastErrorKey is the context key under which the current turn's last
// provider-error detail is stashed. The teacher's original design used a
// goroutine-keyed global singleton; §9 of the design notes redesigns that
// as a per-turn context-carried value instead, since a Loop is a pure
// operation over an explicit context rather than relying on ambient
// goroutine-local state. Same observable contract: the most recent
// provider error detail for this turn is always retrievable.
type lastErrorHolder struct {
	detail string
}

type contextKey struct{ name string }

var lastErrorContextKey = contextKey{name: "provider_last_error"}

// WithLastErrorSlot installs a fresh last-error holder into ctx, cleared at
// the start of every provider call per §4.2's "Error surfaces" clause.
func WithLastErrorSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, lastErrorContextKey, &lastErrorHolder{})
}

// SetLastError records the human-readable detail of the most recent
// provider error for this turn's context.
func SetLastError(ctx context.Context, detail string) {
	if h, ok := ctx.Value(lastErrorContextKey).(*lastErrorHolder); ok {
		h.detail = detail
	}
}

// LastError returns the most recent provider error detail recorded in ctx,
// or "" if none has been set (or the slot was never installed).
func LastError(ctx context.Context) string {
	if h, ok := ctx.Value(lastErrorContextKey).(*lastErrorHolder); ok {
		return h.detail
	}
	return ""
}

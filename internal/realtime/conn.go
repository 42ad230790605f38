package realtime

import "context"

// Conn is one live bidirectional connection to a client. The registry owns
// the mapping from channels and users to connections but never the
// connection lifecycle: the transport registers a connection exactly once
// on accept and unregisters it exactly once on disconnect.
type Conn interface {
	// Send writes one JSON-serializable payload to the client.
	Send(ctx context.Context, payload any) error
}

// Meta is attached to a connection at registration time and drives scoped
// delivery (e.g. domain-wide admin notifications).
type Meta struct {
	// UserID is the canonical id of the owning user, empty for anonymous
	// connections.
	UserID string
	// Role is the user's global role ("admin", "member", ...).
	Role string
	// Domain is the user's email domain.
	Domain string
}

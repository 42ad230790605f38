// Package realtime holds the in-process realtime core: the connection
// registry, the derived presence set and the fan-out engine. It is the only
// process-wide mutable state in the server; everything else is request
// scoped or persisted.
package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/metrics"
)

// Hub tracks live connections by channel key and by user. Short-lived HTTP
// handlers and long-lived socket loops mutate it concurrently, so all state
// sits behind one mutex; the lock is released before any send happens.
type Hub struct {
	log     *zerolog.Logger
	workers int

	mu       sync.RWMutex
	channels map[string]map[Conn]struct{}
	users    map[string]map[Conn]struct{}
	conns    map[Conn]Meta
}

// NewHub creates an empty hub. workers bounds the number of concurrent
// sends per fan-out call.
func NewHub(logger *zerolog.Logger, workers int) *Hub {
	if workers <= 0 {
		workers = defaultFanoutWorkers
	}
	return &Hub{
		log:      logger,
		workers:  workers,
		channels: make(map[string]map[Conn]struct{}),
		users:    make(map[string]map[Conn]struct{}),
		conns:    make(map[Conn]Meta),
	}
}

// Register adds a connection under the given channel key (empty for the
// notifications socket) and, when userID normalizes, under that user's
// connection set. A presence broadcast always follows, so the new
// connection learns the current online set even when no user is attached.
func (h *Hub) Register(ctx context.Context, channelKey string, c Conn, userID any, meta Meta) {
	uid, hasUser := identity.Normalize(userID)

	h.mu.Lock()
	if hasUser {
		meta.UserID = uid
		set, ok := h.users[uid]
		if !ok {
			set = make(map[Conn]struct{})
			h.users[uid] = set
		}
		set[c] = struct{}{}
	}
	if channelKey != "" {
		set, ok := h.channels[channelKey]
		if !ok {
			set = make(map[Conn]struct{})
			h.channels[channelKey] = set
		}
		set[c] = struct{}{}
	}
	h.conns[c] = meta
	metrics.ConnectionsOpen.WithLabelValues(endpointLabel(channelKey)).Inc()
	metrics.PresenceOnline.Set(float64(len(h.users)))
	h.mu.Unlock()

	h.broadcastPresence(ctx)
}

// Unregister removes a connection from the channel and user indexes. It is
// idempotent: unregistering an absent connection is a no-op, so an error
// path racing the normal disconnect path cannot corrupt state. A presence
// broadcast always follows.
func (h *Hub) Unregister(ctx context.Context, channelKey string, c Conn, userID any) {
	uid, hasUser := identity.Normalize(userID)

	h.mu.Lock()
	if set, ok := h.channels[channelKey]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, channelKey)
		}
	}
	if hasUser {
		if set, ok := h.users[uid]; ok {
			delete(set, c)
			if len(set) == 0 {
				// Last device gone: the user drops out of presence.
				delete(h.users, uid)
			}
		}
	}
	if _, known := h.conns[c]; known {
		delete(h.conns, c)
		metrics.ConnectionsOpen.WithLabelValues(endpointLabel(channelKey)).Dec()
	}
	metrics.PresenceOnline.Set(float64(len(h.users)))
	h.mu.Unlock()

	h.broadcastPresence(ctx)
}

// Online returns the sorted set of user ids with at least one connection.
func (h *Hub) Online() []string {
	h.mu.RLock()
	online := make([]string, 0, len(h.users))
	for uid := range h.users {
		online = append(online, uid)
	}
	h.mu.RUnlock()
	sort.Strings(online)
	return online
}

// broadcastPresence pushes the derived online set to every connection.
// O(total connections) per registry mutation is the accepted contract.
func (h *Hub) broadcastPresence(ctx context.Context) {
	payload := map[string]any{
		"type":         "presence_update",
		"online_users": h.Online(),
	}
	h.dispatch(ctx, "all", h.snapshotAll(), payload)
}

func endpointLabel(channelKey string) string {
	if channelKey == "" {
		return "notifications"
	}
	return "chat"
}

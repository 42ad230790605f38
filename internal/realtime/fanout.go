package realtime

import (
	"context"
	"sync"

	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/metrics"
)

const defaultFanoutWorkers = 32

// BroadcastToChannel delivers payload to every connection registered under
// channelKey at call time.
func (h *Hub) BroadcastToChannel(ctx context.Context, channelKey string, payload any) {
	h.dispatch(ctx, "channel", h.snapshotChannel(channelKey, nil), payload)
}

// BroadcastToChannelExcept behaves like BroadcastToChannel but skips one
// connection, used by the chat socket to echo frames to the other
// participants only.
func (h *Hub) BroadcastToChannelExcept(ctx context.Context, channelKey string, except Conn, payload any) {
	h.dispatch(ctx, "channel", h.snapshotChannel(channelKey, except), payload)
}

// SendToUser delivers payload to every connection of the user, however the
// user id was represented at registration time.
func (h *Hub) SendToUser(ctx context.Context, userID any, payload any) {
	uid, ok := identity.Normalize(userID)
	if !ok {
		return
	}
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.users[uid]))
	for c := range h.users[uid] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	h.dispatch(ctx, "user", conns, payload)
}

// ScopedBroadcast delivers payload to every connection whose registration
// metadata satisfies pred, across all channels.
func (h *Hub) ScopedBroadcast(ctx context.Context, pred func(Meta) bool, payload any) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for c, meta := range h.conns {
		if pred(meta) {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	h.dispatch(ctx, "scoped", conns, payload)
}

// BroadcastToAll delivers payload to every live connection.
func (h *Hub) BroadcastToAll(ctx context.Context, payload any) {
	h.dispatch(ctx, "all", h.snapshotAll(), payload)
}

func (h *Hub) snapshotChannel(channelKey string, except Conn) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]Conn, 0, len(h.channels[channelKey]))
	for c := range h.channels[channelKey] {
		if c == except {
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) snapshotAll() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	return conns
}

// dispatch sends payload to each connection through a bounded worker group.
// Sends run concurrently and independently: a stalled connection delays its
// own delivery only, and a failed send is counted and dropped without
// touching the registry. Delivery is best-effort, at-most-once per
// connection present in the snapshot.
func (h *Hub) dispatch(ctx context.Context, kind string, conns []Conn, payload any) {
	if len(conns) == 0 {
		return
	}
	sem := make(chan struct{}, h.workers)
	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := c.Send(ctx, payload); err != nil {
				metrics.DeliveryFailuresTotal.WithLabelValues(kind).Inc()
				h.log.Debug().Err(err).Str("kind", kind).Msg("dropped undeliverable frame")
				return
			}
			metrics.DeliveriesTotal.WithLabelValues(kind).Inc()
		}()
	}
	wg.Wait()
}

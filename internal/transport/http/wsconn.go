package http

import (
	"context"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/spaceshq/spaces-server/internal/realtime"
)

// wsConn adapts a websocket connection to the realtime.Conn interface.
// coder/websocket serializes concurrent writers internally, so concurrent
// fan-out sends to the same connection are safe.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, payload any) error {
	return wsjson.Write(ctx, w.conn, payload)
}

var _ realtime.Conn = (*wsConn)(nil)

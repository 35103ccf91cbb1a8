package session

import (
	"context"
	"fmt"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/lokutor-edge/internal/wire"
)

// maxServerMessageBytes bounds a single inbound frame; audio_stream_chunk
// and audio_cache_store payloads are base64-inflated PCM/WAV, so this is
// generous rather than tight.
const maxServerMessageBytes = 4 << 20

// Conn is a thin wrapper over a websocket connection scoped to one
// session: it owns the socket for its lifetime and is discarded (never
// reused) on any error, matching the invalidate-on-error reconnect shape
// used for the client's other long-lived socket connections.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a new connection to host:port's voice endpoint.
func Dial(ctx context.Context, host string, port int) (*Conn, error) {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/voice"}
	ws, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", u.String(), err)
	}
	ws.SetReadLimit(maxServerMessageBytes)
	return &Conn{ws: ws}, nil
}

// SendJSON writes a client message as a JSON text frame.
func (c *Conn) SendJSON(ctx context.Context, v any) error {
	if err := wsjson.Write(ctx, c.ws, v); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

// ReadServerMessage blocks for the next inbound frame and decodes it as a
// tagged ServerMessage.
func (c *Conn) ReadServerMessage(ctx context.Context) (*wire.ServerMessage, error) {
	_, raw, err := c.ws.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: read: %w", err)
	}
	msg, err := wire.DecodeServerMessage(raw)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Close closes the connection with a normal closure code.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "session ended")
}

// CloseAbnormal is used when the session is being torn down after an
// error rather than a clean shutdown.
func (c *Conn) CloseAbnormal(reason string) {
	c.ws.Close(websocket.StatusInternalError, reason)
}

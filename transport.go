package chatlink

import (
	"context"
	"fmt"
	"strings"

	"nhooyr.io/websocket"
)

// CloseNormal is the close code for a clean, intentional shutdown. Any other
// code (including the -1 used when the peer vanished without a close frame)
// triggers the reconnect path.
const CloseNormal = 1000

// Socket is the minimal transport surface the connection manager drives.
// A Socket is exclusively owned by the manager; nothing else calls it.
type Socket interface {
	// Send writes one text frame. A non-nil error means the socket is dead.
	Send(ctx context.Context, data []byte) error
	// Close closes the socket with the given close code.
	Close(code int, reason string) error
}

// SocketEvents carries the transport callbacks for one physical socket.
// OnClose fires at most once, when the socket dies for any reason; OnError
// reports transport-level errors that are always followed by OnClose.
type SocketEvents struct {
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)
}

// Dialer establishes one physical socket. A nil error means the socket is
// open and its read pump is running.
type Dialer func(ctx context.Context, url string, events SocketEvents) (Socket, error)

// wsURL converts an http(s) base URL into the ws(s) endpoint with the bearer
// token as a query parameter.
func wsURL(baseURL, token string) string {
	u := strings.Replace(baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	u += "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

// dialWebsocket is the production Dialer.
func dialWebsocket(ctx context.Context, url string, events SocketEvents) (Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	s := &wsSocket{conn: conn}
	go s.readPump(events)
	return s, nil
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) Send(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSocket) Close(code int, reason string) error {
	return s.conn.Close(websocket.StatusCode(code), reason)
}

// readPump forwards frames until the socket dies, then reports the close
// exactly once. Read errors carry the peer's close status when one was
// received; otherwise the code is -1 and the manager treats it as abnormal.
func (s *wsSocket) readPump(events SocketEvents) {
	for {
		_, data, err := s.conn.Read(context.Background())
		if err != nil {
			code := int(websocket.CloseStatus(err))
			if code == -1 && events.OnError != nil {
				events.OnError(err)
			}
			if events.OnClose != nil {
				events.OnClose(code, err.Error())
			}
			return
		}
		if events.OnMessage != nil {
			events.OnMessage(data)
		}
	}
}

package channel

import (
	"context"
	"errors"
	"net/http"

	"chatlink/pkg/channel/types"

	"github.com/coder/websocket"
)

// WebSocketDialer is the production Dialer backed by coder/websocket.
type WebSocketDialer struct {
	// HTTPClient is used for the opening handshake; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// NewWebSocketDialer creates a dialer with the given handshake client.
func NewWebSocketDialer(httpClient *http.Client) *WebSocketDialer {
	return &WebSocketDialer{HTTPClient: httpClient}
}

func (d *WebSocketDialer) Dial(ctx context.Context, target string) (types.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, translateCloseError(err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, translateCloseError(err)
	}
	return data, nil
}

func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return translateCloseError(err)
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client closing")
}

// translateCloseError maps websocket close statuses onto the
// transport-neutral CloseError so the state machine never imports the
// websocket package.
func translateCloseError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &types.CloseError{Code: int(ce.Code), Reason: ce.Reason}
	}
	return err
}

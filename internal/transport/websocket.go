package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultPort      = 8073
	HandshakeTimeout = 10 * time.Second
	CloseTimeout     = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

var ErrNotConnected = errors.New("transport is not connected")

// AdminURL builds the administrative channel endpoint. The path carries a
// microsecond timestamp the device uses as a session id.
func AdminURL(host string, port int, now time.Time) string {
	if port == 0 {
		port = DefaultPort
	}

	return fmt.Sprintf("ws://%s/kiwi/%d/admin", net.JoinHostPort(host, strconv.Itoa(port)), now.UnixMicro())
}

// WebSocket is the Web-888 admin channel over a gorilla websocket.
type WebSocket struct {
	host string
	port int
	now  func() time.Time

	mu       sync.Mutex
	conn     *websocket.Conn
	endpoint string
	writeMu  sync.Mutex
	pongs    chan struct{}
}

func NewWebSocket(host string, port int) *WebSocket {
	if port == 0 {
		port = DefaultPort
	}

	return &WebSocket{
		host:  host,
		port:  port,
		now:   time.Now,
		pongs: make(chan struct{}, 1),
	}
}

func (t *WebSocket) Name() string {
	return "websocket"
}

func (t *WebSocket) Endpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.host == "" {
		return ""
	}

	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

func (t *WebSocket) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.conn != nil
}

func (t *WebSocket) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("websocket", "host", t.host, "port", t.port)
	if t.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if t.host == "" {
		logger.Warn("connect failed: host is empty")

		return errors.New("websocket host is empty")
	}

	endpoint := AdminURL(t.host, t.port, t.now())
	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
		NetDialContext:   (&net.Dialer{Timeout: HandshakeTimeout}).DialContext,
	}
	logger.Info("connecting", "url", endpoint)
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial websocket: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		select {
		case t.pongs <- struct{}{}:
		default:
		}

		return nil
	})
	// drop any pong left over from a previous connection
	select {
	case <-t.pongs:
	default:
	}

	t.conn = conn
	t.endpoint = endpoint
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

// Close sends a close frame, waiting at most CloseTimeout, then drops the socket.
func (t *WebSocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	logger := transportLogger("websocket", "host", t.host, "port", t.port)
	if t.conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}

	conn := t.conn
	t.conn = nil
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(CloseTimeout)); err != nil {
		logger.Debug("close frame not sent", "error", err)
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

// ReadFrame returns the next text or binary message payload.
func (t *WebSocket) ReadFrame(ctx context.Context) ([]byte, error) {
	logger := transportLogger("websocket")
	conn, err := t.currentConn()
	if err != nil {
		logger.Debug("read frame failed: not connected", "error", err)

		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			logger.Debug("read frame failed", "error", err)

			return nil, fmt.Errorf("read websocket: %w", err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		logger.Debug("read frame", "len", len(payload))

		return payload, nil
	}
}

func (t *WebSocket) WriteFrame(ctx context.Context, payload []byte) error {
	logger := transportLogger("websocket")
	conn, err := t.currentConn()
	if err != nil {
		logger.Debug("write frame failed: not connected", "error", err)

		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(writeDeadline(ctx))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logger.Warn("write frame failed", "payload_len", len(payload), "error", err)

		return fmt.Errorf("write websocket: %w", err)
	}
	logger.Debug("write frame", "payload_len", len(payload))

	return nil
}

func (t *WebSocket) Ping(ctx context.Context) error {
	conn, err := t.currentConn()
	if err != nil {
		return err
	}
	if err := conn.WriteControl(websocket.PingMessage, nil, writeDeadline(ctx)); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}

	return nil
}

func (t *WebSocket) Pongs() <-chan struct{} {
	return t.pongs
}

func (t *WebSocket) currentConn() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}

	return t.conn, nil
}

func writeDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}

	return time.Now().Add(writeTimeout)
}

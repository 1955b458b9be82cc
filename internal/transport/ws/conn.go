package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// transport адаптирует *websocket.Conn под registry.Transport.
// Все записи сериализованы: gorilla не разрешает конкурентные writer-ы.
type transport struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	writeWait time.Duration
}

func newTransport(conn *websocket.Conn, writeWait time.Duration) *transport {
	return &transport{conn: conn, writeWait: writeWait}
}

func (t *transport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *transport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

func (t *transport) Close() error {
	return t.conn.Close()
}

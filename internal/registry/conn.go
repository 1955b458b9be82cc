package registry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Transport — сырой duplex-линк, которым владеет Conn.
type Transport interface {
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Conn оборачивает транспорт и исходящий буфер фиксированного размера.
// Пока буфер полон, новые сообщения для этого получателя отбрасываются
// (drop-newest): медленный клиент не должен тормозить остальных.
type Conn struct {
	id        string
	transport Transport

	out    chan []byte
	closed chan struct{}

	mu           sync.Mutex
	state        State
	lastActivity time.Time

	dropped atomic.Uint64
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Dropped — сколько сообщений отброшено из-за переполненного буфера.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Send ставит сообщение в исходящую очередь, не блокируясь.
// Возвращает ErrConnClosed для закрытого соединения и ErrBufferFull,
// когда очередь получателя забита.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.out <- data:
		return nil
	default:
		c.dropped.Add(1)
		return ErrBufferFull
	}
}

// WriteLoop выкачивает исходящую очередь в транспорт и шлет ping-и.
// Завершается при закрытии соединения или отмене контекста.
func (c *Conn) WriteLoop(ctx context.Context, pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.out:
			if err := c.transport.WriteMessage(data); err != nil {
				slog.Debug("conn write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.transport.Ping(); err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	close(c.closed)
	_ = c.transport.Close()
}

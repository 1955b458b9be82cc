package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

const defaultSendBuffer = 64

// Registry владеет жизненным циклом всех живых соединений.
// Соединение анонимно до identity-announce: регистрация здесь
// не трогает roster.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Conn
	bufSize int

	closeMu sync.RWMutex
	onClose []func(connID string)
}

func New(sendBuffer int) *Registry {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Registry{
		conns:   make(map[string]*Conn),
		bufSize: sendBuffer,
	}
}

// OnClose регистрирует колбек, вызываемый ровно один раз на соединение
// при его эффективном удалении (cleanup по connID, а не по leave-сообщению).
func (r *Registry) OnClose(fn func(connID string)) {
	r.closeMu.Lock()
	r.onClose = append(r.onClose, fn)
	r.closeMu.Unlock()
}

// Register принимает свежеоткрытый транспорт и выдает ему id.
func (r *Registry) Register(t Transport) *Conn {
	c := &Conn{
		id:           uuid.New().String(),
		transport:    t,
		out:          make(chan []byte, r.bufSize),
		closed:       make(chan struct{}),
		state:        StateOpen,
		lastActivity: time.Now(),
	}

	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()

	return c
}

func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// Touch обновляет last-activity (pong, входящее сообщение).
func (r *Registry) Touch(connID string) {
	if c, ok := r.Get(connID); ok {
		c.touch()
	}
}

// Unregister закрывает соединение и убирает его из реестра.
// Идемпотентен: повторное закрытие — no-op, колбеки не дублируются.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	c.close()

	r.closeMu.RLock()
	fns := r.onClose
	r.closeMu.RUnlock()
	for _, fn := range fns {
		fn(connID)
	}
}

// Len — количество живых соединений.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

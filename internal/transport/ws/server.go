package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/registry"
	"github.com/cwrk-planet/classroom-service/internal/router"
	"github.com/cwrk-planet/classroom-service/pkg/logger"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 5 * time.Second

type Server struct {
	upgrader websocket.Upgrader
	reg      *registry.Registry
	rt       *router.Router

	pingEvery time.Duration
	readLimit int64
}

func NewServer(reg *registry.Registry, rt *router.Router) *Server {
	return &Server{
		reg: reg,
		rt:  rt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: 15 * time.Second,
		readLimit: 1 << 20,
	}
}

// WS endpoint: GET /ws — event bus.
// Соединение анонимно, пока не пришлет identity-announce; при любом
// обрыве cleanup идет по conn id, leave-сообщений протокол не требует.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	c := s.reg.Register(newTransport(conn, defaultWriteWait))
	slog.Info("ws connection open", logger.Conn(c.ID()), slog.String("remote", conn.RemoteAddr().String()))

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		c.WriteLoop(ctx, s.pingEvery)
		cancel()
	}()

	s.readLoop(c, conn)

	cancel()
	s.reg.Unregister(c.ID())
	slog.Info("ws connection closed", logger.Conn(c.ID()), slog.Uint64("dropped", c.Dropped()))
}

func (s *Server) readLoop(c *registry.Conn, conn *websocket.Conn) {
	conn.SetReadLimit(s.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		s.reg.Touch(c.ID())
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		s.reg.Touch(c.ID())

		// сообщения одного соединения обрабатываются строго по порядку
		s.rt.Dispatch(c.ID(), data)
	}
}

package ws

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-service/internal/collab"
	"github.com/cwrk-planet/collab-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Dispatcher: то, что Server делает с входящими кадрами (collab.Router).
type Dispatcher interface {
	Dispatch(ctx context.Context, connID string, data []byte)
	Disconnect(ctx context.Context, connID string)
}

type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	SendBuffer     int
	AllowedOrigins []string // пусто: любой Origin
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	router   Dispatcher
	opts     Options
}

func NewServer(hub *Hub, router Dispatcher, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		hub:    hub,
		router: router,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// HandleWS: GET /ws/documents. Документ выбирается событием join_document, не URL.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.Warn("ws upgrade failed", "err", err, "remote_ip", r.RemoteAddr)
		return
	}

	c := newWsConn(conn, uuid.NewString(), s.opts.SendBuffer)
	l := logger.L().With(slog.String("conn_id", c.id), slog.String("remote_ip", r.RemoteAddr))
	// контекст соединения живёт дольше запроса: отменяется только закрытием соединения
	ctx, cancel := context.WithCancel(logger.WithContext(context.WithoutCancel(r.Context()), l))
	defer cancel()

	s.hub.Add(c)
	l.Info("ws connected")

	_ = s.hub.Send(c.id, collab.Message{
		Type:    collab.EventConnected,
		Payload: collab.ConnectedPayload{ConnectionID: c.id},
	})

	go s.writeLoop(c)
	s.readLoop(ctx, c)

	s.hub.Remove(c)
	cancel()
	s.router.Disconnect(logger.WithContext(context.Background(), l), c.id)

	if err := c.Close(); err != nil {
		l.Debug("ws close failed", "err", err)
	}
	l.Info("ws disconnected")
}

// readLoop обрабатывает кадры строго по порядку поступления.
func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(s.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.FromContext(ctx).Debug("ws read failed", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.router.Dispatch(ctx, c.id, data)
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	defer func() { _ = c.Close() }()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteTimeout)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// --- conn ---

type wsConn struct {
	conn *websocket.Conn
	id   string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, id string, buffer int) *wsConn {
	return &wsConn{
		conn:   c,
		id:     id,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

// Enqueue не блокирует: медленный клиент теряет кадры, а не тормозит комнату.
func (c *wsConn) Enqueue(frame []byte) error {
	select {
	case <-c.closed:
		return ErrConnNotFound
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

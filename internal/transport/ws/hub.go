package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cwrk-planet/collab-service/internal/collab"
)

var (
	ErrConnNotFound = errors.New("ws: connection not found")
	ErrSlowConsumer = errors.New("ws: send buffer full")
)

type Conn interface {
	ID() string
	// Enqueue кладёт готовый кадр в очередь записи без блокировки.
	Enqueue(frame []byte) error
	Close() error
}

// Hub: живые соединения по connectionID. Комнаты хранит session.State, Hub только доставляет.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.conns[c.ID()]; ok && cur == c {
		delete(h.conns, c.ID())
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Send реализует collab.Outbox.
func (h *Hub) Send(connID string, msg collab.Message) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnNotFound
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Enqueue(frame)
}

// SendMany кодирует сообщение один раз и кладёт один и тот же кадр всем адресатам.
// Недоставленные адресаты не мешают остальным; их ошибки возвращаются вместе.
func (h *Hub) SendMany(connIDs []string, msg collab.Message) error {
	if len(connIDs) == 0 {
		return nil
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns := make([]Conn, len(connIDs))
	for i, id := range connIDs {
		conns[i] = h.conns[id]
	}
	h.mu.RUnlock()

	var errs []error
	for i, c := range conns {
		if c == nil {
			errs = append(errs, fmt.Errorf("%s: %w", connIDs[i], ErrConnNotFound))
			continue
		}
		if err := c.Enqueue(frame); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", connIDs[i], err))
		}
	}
	return errors.Join(errs...)
}

// CloseAll закрывает все соединения (graceful shutdown).
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close() // best-effort
	}
}

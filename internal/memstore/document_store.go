// Package memstore: хранилище документов в памяти процесса для локального запуска и тестов.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrTxDone    = errors.New("memstore: transaction already finished")
	ErrForeignTx = errors.New("memstore: transaction was not opened by this store")
)

// DocumentStore применяет записи транзакции атомарно при Commit.
// Уровень изоляции игнорируется: читается последнее закоммиченное состояние плюс свои записи.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]domain.Document)}
}

// Create добавляет документ с новым uuid.
func (s *DocumentStore) Create(title, content string) domain.Document {
	d := domain.Document{
		ID:           uuid.NewString(),
		Title:        title,
		Content:      content,
		LastModified: time.Now().UTC(),
	}
	s.Put(d)
	return d
}

func (s *DocumentStore) Put(d domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
}

type tx struct {
	store  *DocumentStore
	writes map[string]domain.Document
	done   bool
}

func (s *DocumentStore) BeginTx(ctx context.Context, _ domain.IsolationLevel) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{store: s, writes: make(map[string]domain.Document)}, nil
}

func (s *DocumentStore) FindByID(ctx context.Context, dtx domain.Tx, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.own(dtx)
	if err != nil {
		return nil, err
	}
	if t != nil {
		if d, ok := t.writes[id]; ok {
			return &d, nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return &d, nil
}

func (s *DocumentStore) UpdateContent(ctx context.Context, dtx domain.Tx, id, content string, modifiedAt time.Time) (*domain.Document, error) {
	d, err := s.FindByID(ctx, dtx, id)
	if err != nil {
		return nil, err
	}
	d.Content = content
	d.LastModified = modifiedAt

	t, _ := s.own(dtx)
	if t == nil {
		s.Put(*d)
	} else {
		t.writes[id] = *d
	}
	return d, nil
}

func (s *DocumentStore) own(dtx domain.Tx) (*tx, error) {
	if dtx == nil {
		return nil, nil
	}
	t, ok := dtx.(*tx)
	if !ok || t.store != s {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, ErrTxDone
	}
	return t, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := ctx.Err(); err != nil {
		return err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for id, d := range t.writes {
		t.store.docs[id] = d
	}
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.writes = nil
	return nil
}

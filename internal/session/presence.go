package session

import (
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
)

type Identity struct {
	UserID      string
	DisplayName string
}

// Patch: изменения активности; nil-поля не трогаются.
type Patch struct {
	CursorPosition *int
	IsTyping       *bool
}

type room struct {
	mu           sync.Mutex
	participants map[string]*domain.Participant // connectionID -> participant
	removed      bool                           // комната удалена из таблицы, указатель протух
}

// Table: присутствие по комнатам. Каждая комната под своим мьютексом;
// добавление и удаление дополнительно берут мьютекс таблицы (порядок: table -> room).
type Table struct {
	mu    sync.RWMutex
	rooms map[string]*room
	now   func() time.Time
}

func NewTable(now func() time.Time) *Table {
	if now == nil {
		now = time.Now
	}
	return &Table{rooms: make(map[string]*room), now: now}
}

// Add создаёт участника (или обновляет существующего) и возвращает остальных участников комнаты.
func (t *Table) Add(docID, connID string, id Identity) (self domain.Participant, others []domain.Participant, rejoined bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rooms[docID]
	if !ok {
		r = &room{participants: make(map[string]*domain.Participant)}
		t.rooms[docID] = r
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := t.now()
	p, exists := r.participants[connID]
	if exists {
		p.UserID = id.UserID
		p.DisplayName = id.DisplayName
		advance(p, now)
	} else {
		p = &domain.Participant{
			ConnectionID:   connID,
			UserID:         id.UserID,
			DisplayName:    id.DisplayName,
			DocumentID:     docID,
			JoinedAt:       now,
			LastActivityAt: now,
		}
		r.participants[connID] = p
	}

	return p.Clone(), r.snapshotLocked(connID), exists
}

// Remove идемпотентен; пустая комната удаляется.
func (t *Table) Remove(docID, connID string) (domain.Participant, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rooms[docID]
	if !ok {
		return domain.Participant{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[connID]
	if !ok {
		return domain.Participant{}, false
	}
	delete(r.participants, connID)
	t.dropIfEmptyLocked(docID, r)

	return p.Clone(), true
}

// Touch обновляет активность участника. Если участника уже нет: no-op, ok=false.
func (t *Table) Touch(docID, connID string, patch Patch) (domain.Participant, bool) {
	r := t.room(docID)
	if r == nil {
		return domain.Participant{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed {
		return domain.Participant{}, false
	}
	p, ok := r.participants[connID]
	if !ok {
		return domain.Participant{}, false
	}

	advance(p, t.now())
	if patch.CursorPosition != nil {
		pos := *patch.CursorPosition
		p.CursorPosition = &pos
	}
	if patch.IsTyping != nil {
		p.IsTyping = *patch.IsTyping
	}

	return p.Clone(), true
}

// Snapshot возвращает участников комнаты в порядке входа, без exclude.
func (t *Table) Snapshot(docID, exclude string) []domain.Participant {
	r := t.room(docID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.removed {
		return nil
	}
	return r.snapshotLocked(exclude)
}

// RemoveIdle удаляет участников, последняя активность которых раньше cutoff.
func (t *Table) RemoveIdle(docID string, cutoff time.Time) []domain.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rooms[docID]
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []domain.Participant
	for connID, p := range r.participants {
		if p.LastActivityAt.Before(cutoff) {
			delete(r.participants, connID)
			evicted = append(evicted, p.Clone())
		}
	}
	t.dropIfEmptyLocked(docID, r)

	sortParticipants(evicted)
	return evicted
}

func (t *Table) Rooms() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.rooms))
	for docID := range t.rooms {
		out = append(out, docID)
	}
	sort.Strings(out)
	return out
}

// size: число участников комнаты.
func (t *Table) size(docID string) int {
	r := t.room(docID)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

func (t *Table) room(docID string) *room {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rooms[docID]
}

// dropIfEmptyLocked: вызывается под t.mu и r.mu.
func (t *Table) dropIfEmptyLocked(docID string, r *room) {
	if len(r.participants) == 0 {
		r.removed = true
		delete(t.rooms, docID)
	}
}

func (r *room) snapshotLocked(exclude string) []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for connID, p := range r.participants {
		if connID == exclude {
			continue
		}
		out = append(out, p.Clone())
	}
	sortParticipants(out)
	return out
}

// advance: lastActivityAt не убывает.
func advance(p *domain.Participant, now time.Time) {
	if now.After(p.LastActivityAt) {
		p.LastActivityAt = now
	}
}

func sortParticipants(ps []domain.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].ConnectionID < ps[j].ConnectionID
	})
}

package session

import (
	"sync"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
)

// Departure: участник, покинувший комнату, и те, кому об этом надо сообщить.
type Departure struct {
	Participant domain.Participant
	Remaining   []string // connectionID оставшихся в комнате
}

type JoinResult struct {
	Self     domain.Participant
	Others   []domain.Participant
	Rejoined bool
	Left     *Departure // неявный выход из предыдущей комнаты
}

// State владеет Registry и Table и держит их согласованными:
// все изменения членства идут под одним мьютексом, touch: только под мьютексом комнаты.
type State struct {
	mu       sync.Mutex
	registry *Registry
	table    *Table
}

func NewState(now func() time.Time) *State {
	return &State{
		registry: NewRegistry(),
		table:    NewTable(now),
	}
}

func (s *State) Join(connID, docID string, id Identity) JoinResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res JoinResult
	if prev, moved := s.registry.Join(connID, docID); moved {
		if p, ok := s.table.Remove(prev, connID); ok {
			res.Left = &Departure{Participant: p, Remaining: connIDs(s.table.Snapshot(prev, ""))}
		}
	}
	res.Self, res.Others, res.Rejoined = s.table.Add(docID, connID, id)
	return res
}

// Leave выводит соединение из docID. Если соединение сейчас в другой комнате или ни в какой: no-op.
func (s *State) Leave(connID, docID string) (Departure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.LeaveIf(connID, docID) {
		return Departure{}, false
	}
	return s.removeLocked(docID, connID)
}

// Disconnect выводит соединение из его текущей комнаты.
func (s *State) Disconnect(connID string) (Departure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docID, ok := s.registry.Leave(connID)
	if !ok {
		return Departure{}, false
	}
	return s.removeLocked(docID, connID)
}

func (s *State) Touch(connID, docID string, patch Patch) (domain.Participant, bool) {
	return s.table.Touch(docID, connID, patch)
}

func (s *State) Participants(docID, exclude string) []domain.Participant {
	return s.table.Snapshot(docID, exclude)
}

func (s *State) Recipients(docID, exclude string) []string {
	return connIDs(s.table.Snapshot(docID, exclude))
}

func (s *State) Lookup(connID string) (string, bool) {
	return s.registry.Lookup(connID)
}

// Sweep удаляет участников, неактивных дольше timeout.
func (s *State) Sweep(now time.Time, timeout time.Duration) []Departure {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-timeout)
	var out []Departure
	for _, docID := range s.table.Rooms() {
		evicted := s.table.RemoveIdle(docID, cutoff)
		if len(evicted) == 0 {
			continue
		}
		remaining := connIDs(s.table.Snapshot(docID, ""))
		for _, p := range evicted {
			s.registry.LeaveIf(p.ConnectionID, docID)
			out = append(out, Departure{Participant: p, Remaining: remaining})
		}
	}
	return out
}

type Stats struct {
	Rooms       int
	Connections int
}

// Stats: снимок размеров для gauge-метрик.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Rooms: len(s.table.Rooms()), Connections: s.registry.Len()}
}

func (s *State) removeLocked(docID, connID string) (Departure, bool) {
	p, ok := s.table.Remove(docID, connID)
	if !ok {
		return Departure{}, false
	}
	return Departure{Participant: p, Remaining: connIDs(s.table.Snapshot(docID, ""))}, true
}

func connIDs(ps []domain.Participant) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ConnectionID)
	}
	return out
}

package session

import "sync"

// Registry: обратный индекс connectionID -> documentID.
// Соединение состоит не более чем в одной комнате.
type Registry struct {
	mu   sync.RWMutex
	docs map[string]string
}

func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]string)}
}

// Join записывает комнату соединения и возвращает предыдущую, если она отличалась.
func (r *Registry) Join(connID, docID string) (prev string, moved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.docs[connID]
	r.docs[connID] = docID
	if ok && old != docID {
		return old, true
	}
	return "", false
}

func (r *Registry) Leave(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docID, ok := r.docs[connID]
	if ok {
		delete(r.docs, connID)
	}
	return docID, ok
}

// LeaveIf удаляет запись только если соединение всё ещё числится в docID.
func (r *Registry) LeaveIf(connID, docID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.docs[connID]; ok && cur == docID {
		delete(r.docs, connID)
		return true
	}
	return false
}

func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docID, ok := r.docs[connID]
	return docID, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

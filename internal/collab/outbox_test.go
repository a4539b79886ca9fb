package collab

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

var errGone = errors.New("connection gone")

type sent struct {
	To  string
	Msg Message
}

// recordingOutbox запоминает все отправленные сообщения; closed: соединения, которым слать нельзя.
type recordingOutbox struct {
	mu     sync.Mutex
	sent    []sent
	closed  map[string]bool
	batches int // вызовы SendMany
}

func newRecordingOutbox() *recordingOutbox {
	return &recordingOutbox{closed: map[string]bool{}}
}

func (o *recordingOutbox) Send(connID string, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed[connID] {
		return errGone
	}
	o.sent = append(o.sent, sent{To: connID, Msg: msg})
	return nil
}

func (o *recordingOutbox) SendMany(connIDs []string, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches++
	var errs []error
	for _, id := range connIDs {
		if o.closed[id] {
			errs = append(errs, errGone)
			continue
		}
		o.sent = append(o.sent, sent{To: id, Msg: msg})
	}
	return errors.Join(errs...)
}

func (o *recordingOutbox) reset() {
	o.mu.Lock()
	o.sent = nil
	o.batches = 0
	o.mu.Unlock()
}

func (o *recordingOutbox) to(connID string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Message
	for _, s := range o.sent {
		if s.To == connID {
			out = append(out, s.Msg)
		}
	}
	return out
}

func (o *recordingOutbox) ofType(typ string) []sent {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []sent
	for _, s := range o.sent {
		if s.Msg.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

func (o *recordingOutbox) total() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func frame(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	data, err := json.Marshal(Envelope{Type: typ, Payload: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

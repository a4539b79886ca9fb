package collab

import (
	"context"
	"testing"
	"time"

	"github.com/cwrk-planet/collab-service/internal/session"
)

func TestSweeper_EvictsIdleParticipantOnce(t *testing.T) {
	f := newFixture(t)
	f.join(t, "idle", "doc1", "Idle")
	f.join(t, "busy", "doc1", "Busy")
	f.out.reset()

	sw := NewSweeper(f.state, f.out, 0, 0)
	sw.SetClock(f.clock.Now)

	f.clock.Advance(61 * time.Second)
	f.router.Dispatch(context.Background(), "busy", frame(t, EventHeartbeat, DocumentRefPayload{DocumentID: "doc1"}))

	if n := sw.SweepOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	left := f.out.ofType(EventParticipantLeft)
	if len(left) != 2 || left[0].To != "busy" || left[1].To != "idle" {
		t.Fatalf("expected participant_left to busy and to the evicted idle, got %+v", left)
	}
	for _, l := range left {
		if p := l.Msg.Payload.(ParticipantLeftPayload); p.ConnectionID != "idle" || p.DocumentID != "doc1" {
			t.Fatalf("wrong participant announced: %+v", p)
		}
	}

	if n := sw.SweepOnce(context.Background()); n != 0 {
		t.Fatalf("second sweep re-evicted %d", n)
	}
	if got := f.out.ofType(EventParticipantLeft); len(got) != 2 {
		t.Fatalf("second sweep re-broadcast: %+v", got)
	}

	// disconnect after eviction is silent
	f.router.Disconnect(context.Background(), "idle")
	if got := f.out.ofType(EventParticipantLeft); len(got) != 2 {
		t.Fatalf("disconnect after eviction re-announced: %+v", got)
	}
}

func TestSweeper_EvictedAloneIsNotified(t *testing.T) {
	f := newFixture(t)
	f.join(t, "solo", "doc1", "Solo")
	f.out.reset()

	sw := NewSweeper(f.state, f.out, 0, 0)
	sw.SetClock(f.clock.Now)
	f.clock.Advance(2 * time.Minute)

	if n := sw.SweepOnce(context.Background()); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	left := f.out.to("solo")
	if len(left) != 1 || left[0].Type != EventParticipantLeft {
		t.Fatalf("evicted connection must learn it left, got %+v", left)
	}

	// дальнейшая активность без повторного join игнорируется
	f.out.reset()
	f.router.Dispatch(context.Background(), "solo", frame(t, EventCursorMove, CursorMovePayload{DocumentID: "doc1", Position: 3}))
	if f.out.total() != 0 {
		t.Fatalf("activity after eviction produced output: %+v", f.out.sent)
	}
	if _, ok := f.state.Lookup("solo"); ok {
		t.Fatal("evicted connection still registered")
	}
}

func TestSweeper_WithinTimeoutKeepsParticipants(t *testing.T) {
	clk := newTestClock()
	state := session.NewState(clk.Now)
	state.Join("c1", "doc1", session.Identity{UserID: "u1", DisplayName: "Ana"})
	out := newRecordingOutbox()

	sw := NewSweeper(state, out, time.Second, time.Minute)
	sw.SetClock(clk.Now)

	clk.Advance(time.Minute)
	if n := sw.SweepOnce(context.Background()); n != 0 {
		t.Fatalf("participant at exactly the timeout must stay, evicted %d", n)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	state := session.NewState(nil)
	sw := NewSweeper(state, newRecordingOutbox(), 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestState_SizeEqualsJoinsMinusDistinctLeaves(t *testing.T) {
	s := NewState(nil)
	for i := 0; i < 5; i++ {
		s.Join(fmt.Sprintf("c%d", i), "doc1", Identity{UserID: fmt.Sprint(i), DisplayName: "user"})
	}

	s.Leave("c1", "doc1")
	s.Leave("c1", "doc1")
	s.Disconnect("c2")
	s.Disconnect("c2")
	s.Leave("c3", "other-doc") // not in that room

	if got := len(s.Participants("doc1", "")); got != 3 {
		t.Fatalf("expected 3 participants, got %d", got)
	}
	if st := s.Stats(); st.Connections != 3 || st.Rooms != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestState_JoinSnapshotExcludesJoiner(t *testing.T) {
	s := NewState(nil)
	s.Join("p1", "D", Identity{UserID: "u1", DisplayName: "P1"})
	s.Join("p2", "D", Identity{UserID: "u2", DisplayName: "P2"})

	res := s.Join("p3", "D", Identity{UserID: "u3", DisplayName: "P3"})
	if len(res.Others) != 2 {
		t.Fatalf("expected 2 others, got %+v", res.Others)
	}
	got := map[string]bool{}
	for _, p := range res.Others {
		got[p.ConnectionID] = true
	}
	if !got["p1"] || !got["p2"] {
		t.Fatalf("expected {p1,p2}, got %v", got)
	}
	if res.Left != nil || res.Rejoined {
		t.Fatalf("unexpected departure/rejoin: %+v", res)
	}
}

func TestState_JoinOtherRoomLeavesPrevious(t *testing.T) {
	s := NewState(nil)
	s.Join("c1", "doc1", Identity{UserID: "u1", DisplayName: "Ana"})
	s.Join("c2", "doc1", Identity{UserID: "u2", DisplayName: "Bia"})

	res := s.Join("c1", "doc2", Identity{UserID: "u1", DisplayName: "Ana"})
	if res.Left == nil || res.Left.Participant.DocumentID != "doc1" {
		t.Fatalf("expected implicit leave of doc1, got %+v", res.Left)
	}
	if len(res.Left.Remaining) != 1 || res.Left.Remaining[0] != "c2" {
		t.Fatalf("expected c2 to be notified, got %v", res.Left.Remaining)
	}
	if docID, _ := s.Lookup("c1"); docID != "doc2" {
		t.Fatalf("registry not updated: %q", docID)
	}
	if len(s.Participants("doc1", "")) != 1 || len(s.Participants("doc2", "")) != 1 {
		t.Fatal("rooms inconsistent after move")
	}
}

func TestState_RejoinSameRoom(t *testing.T) {
	s := NewState(nil)
	s.Join("c1", "doc1", Identity{UserID: "u1", DisplayName: "Ana"})
	res := s.Join("c1", "doc1", Identity{UserID: "u1", DisplayName: "Ana B."})

	if !res.Rejoined || res.Left != nil {
		t.Fatalf("expected idempotent rejoin, got %+v", res)
	}
	if res.Self.DisplayName != "Ana B." {
		t.Fatalf("identity not refreshed: %+v", res.Self)
	}
	if len(s.Participants("doc1", "")) != 1 {
		t.Fatal("rejoin duplicated participant")
	}
}

func TestState_DisconnectUnknownConnection(t *testing.T) {
	s := NewState(nil)
	if _, ok := s.Disconnect("ghost"); ok {
		t.Fatal("disconnect of unknown connection must be a no-op")
	}
}

func TestState_SweepEvictsOnce(t *testing.T) {
	clk := newFakeClock()
	s := NewState(clk.Now)
	s.Join("idle", "doc1", Identity{UserID: "u1", DisplayName: "Idle"})
	s.Join("busy", "doc1", Identity{UserID: "u2", DisplayName: "Busy"})

	clk.Advance(61 * time.Second)
	s.Touch("busy", "doc1", Patch{})

	deps := s.Sweep(clk.Now(), time.Minute)
	if len(deps) != 1 || deps[0].Participant.ConnectionID != "idle" {
		t.Fatalf("expected idle evicted, got %+v", deps)
	}
	if len(deps[0].Remaining) != 1 || deps[0].Remaining[0] != "busy" {
		t.Fatalf("expected busy notified, got %v", deps[0].Remaining)
	}
	if _, ok := s.Lookup("idle"); ok {
		t.Fatal("registry still maps evicted connection")
	}

	if again := s.Sweep(clk.Now(), time.Minute); len(again) != 0 {
		t.Fatalf("second sweep re-evicted: %+v", again)
	}
	if _, ok := s.Disconnect("idle"); ok {
		t.Fatal("disconnect after eviction must not report a second departure")
	}
}

func TestState_SweepDeletesEmptyRoom(t *testing.T) {
	clk := newFakeClock()
	s := NewState(clk.Now)
	s.Join("c1", "doc1", Identity{UserID: "u1", DisplayName: "Ana"})

	clk.Advance(2 * time.Minute)
	deps := s.Sweep(clk.Now(), time.Minute)
	if len(deps) != 1 || len(deps[0].Remaining) != 0 {
		t.Fatalf("unexpected departures: %+v", deps)
	}
	if st := s.Stats(); st.Rooms != 0 || st.Connections != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

func TestState_SweepAndLeaveRaceReportsOnce(t *testing.T) {
	for i := 0; i < 100; i++ {
		clk := newFakeClock()
		s := NewState(clk.Now)
		s.Join("c1", "doc1", Identity{UserID: "u1", DisplayName: "Ana"})
		clk.Advance(2 * time.Minute)

		var reported atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			reported.Add(int32(len(s.Sweep(clk.Now(), time.Minute))))
		}()
		go func() {
			defer wg.Done()
			if _, ok := s.Leave("c1", "doc1"); ok {
				reported.Add(1)
			}
		}()
		wg.Wait()

		if got := reported.Load(); got != 1 {
			t.Fatalf("iteration %d: participant reported %d times", i, got)
		}
	}
}

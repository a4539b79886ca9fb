package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cwrk-planet/collab-service/internal/session"
)

func newTestRouter(t *testing.T) (http.Handler, *session.State) {
	t.Helper()
	state := session.NewState(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) })
	ws := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusSwitchingProtocols) }
	return NewRouter(NewHandler(state), ws, []string{"https://app.example"}), state
}

func TestRouter_Healthz(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouter_Participants(t *testing.T) {
	r, state := newTestRouter(t)
	state.Join("c1", "doc-1", session.Identity{UserID: "u1", DisplayName: "Ann"})
	state.Join("c2", "doc-1", session.Identity{UserID: "u2", DisplayName: "Bob"})
	state.Join("c3", "doc-2", session.Identity{UserID: "u3", DisplayName: "Cid"})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/doc-1/participants", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Data ParticipantsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.DocumentID != "doc-1" || len(body.Data.Participants) != 2 {
		t.Fatalf("unexpected body %s", rec.Body)
	}
	if body.Data.Participants[0].ConnectionID != "c1" || body.Data.Participants[1].UserID != "u2" {
		t.Fatalf("unexpected order %+v", body.Data.Participants)
	}
}

func TestRouter_ParticipantsEmptyRoom(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents/none/participants", nil))

	var body struct {
		Data ParticipantsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.Participants == nil || len(body.Data.Participants) != 0 {
		t.Fatalf("want empty list, got %s", rec.Body)
	}
}

func TestRouter_CORS(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/documents/doc-1/participants", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/documents/doc-1/participants", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("allow-origin = %q, want empty", got)
	}
}

package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

// PresenceReader: read-only доступ к комнатам (session.State).
type PresenceReader interface {
	Participants(docID, exclude string) []domain.Participant
}

type Handler struct {
	presence PresenceReader
}

func NewHandler(presence PresenceReader) *Handler {
	return &Handler{presence: presence}
}

type ParticipantItem struct {
	ConnectionID   string    `json:"connectionId"`
	UserID         string    `json:"userId"`
	DisplayName    string    `json:"displayName"`
	JoinedAt       time.Time `json:"joinedAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CursorPosition *int      `json:"cursorPosition,omitempty"`
	IsTyping       bool      `json:"isTyping"`
}

type ParticipantsResponse struct {
	DocumentID   string            `json:"documentId"`
	Participants []ParticipantItem `json:"participants"`
}

// GET /documents/{id}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	if docID == "" {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "document id is required")
		return
	}

	ps := h.presence.Participants(docID, "")
	items := make([]ParticipantItem, 0, len(ps))
	for _, p := range ps {
		items = append(items, ParticipantItem{
			ConnectionID:   p.ConnectionID,
			UserID:         p.UserID,
			DisplayName:    p.DisplayName,
			JoinedAt:       p.JoinedAt,
			LastActivityAt: p.LastActivityAt,
			CursorPosition: p.CursorPosition,
			IsTyping:       p.IsTyping,
		})
	}

	httputil.OK(r.Context(), w, ParticipantsResponse{DocumentID: docID, Participants: items})
}

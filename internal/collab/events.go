package collab

import (
	"encoding/json"
	"time"
)

// Входящие события
const (
	EventJoinDocument  = "join_document"
	EventLeaveDocument = "leave_document"
	EventContentChange = "content_change"
	EventCursorMove    = "cursor_move"
	EventTypingStatus  = "typing_status"
	EventHeartbeat     = "heartbeat"
	EventSyncRequest   = "sync_request"
)

// Исходящие события
const (
	EventConnected           = "connected"
	EventParticipantJoined   = "participant_joined"
	EventActiveUsersSnapshot = "active_users_snapshot"
	EventParticipantLeft     = "participant_left"
	EventCursorUpdated       = "cursor_updated"
	EventTypingUpdated       = "typing_updated"
	EventContentUpdated      = "content_updated"
	EventContentAck          = "content_ack"
	EventSyncError           = "sync_error"
	EventDocumentSnapshot    = "document_snapshot"
	EventRejected            = "event_rejected"
)

// Envelope: входящий кадр; payload валидируется по схеме события до разбора.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message: исходящий кадр.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinDocumentPayload struct {
	DocumentID  string `json:"documentId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type DocumentRefPayload struct {
	DocumentID string `json:"documentId"`
}

type ContentChangePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

type CursorMovePayload struct {
	DocumentID string `json:"documentId"`
	Position   int    `json:"position"`
}

type TypingStatusPayload struct {
	DocumentID string `json:"documentId"`
	IsTyping   bool   `json:"isTyping"`
	Position   *int   `json:"position,omitempty"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type ParticipantInfo struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	ConnectionID string `json:"connectionId"`
}

type ActiveUsersSnapshotPayload struct {
	DocumentID   string            `json:"documentId"`
	Participants []ParticipantInfo `json:"participants"`
}

type ParticipantLeftPayload struct {
	DocumentID   string `json:"documentId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
}

type CursorUpdatedPayload struct {
	DocumentID   string `json:"documentId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Position     int    `json:"position"`
	Timestamp    int64  `json:"timestamp"`
}

type TypingUpdatedPayload struct {
	DocumentID   string `json:"documentId"`
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	IsTyping     bool   `json:"isTyping"`
	Position     *int   `json:"position,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

type ContentUpdatedPayload struct {
	DocumentID   string    `json:"documentId"`
	Content      string    `json:"content"`
	ConnectionID string    `json:"connectionId"`
	LastModified time.Time `json:"lastModified"`
}

type ContentAckPayload struct {
	DocumentID string `json:"documentId"`
	Success    bool   `json:"success"`
	Timestamp  int64  `json:"timestamp"`
}

type SyncErrorPayload struct {
	DocumentID string `json:"documentId"`
	Error      string `json:"error"`
}

type DocumentSnapshotPayload struct {
	DocumentID   string    `json:"documentId"`
	Content      string    `json:"content"`
	LastModified time.Time `json:"lastModified"`
	Timestamp    int64     `json:"timestamp"`
}

type EventRejectedPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/internal/session"
	"github.com/cwrk-planet/collab-service/pkg/logger"
)

// Outbox доставляет сообщение конкретным соединениям. Ошибка: соединения уже нет или оно не успевает читать.
// SendMany кодирует сообщение один раз и возвращает объединённые ошибки недоставленных адресатов.
type Outbox interface {
	Send(connID string, msg Message) error
	SendMany(connIDs []string, msg Message) error
}

type DocumentGateway interface {
	CommitContent(ctx context.Context, id, content string) (time.Time, error)
	FetchContent(ctx context.Context, id string) (*domain.Document, error)
}

// Router разбирает входящие события одного соединения и рассылает исходящие.
// Dispatch для одного соединения вызывается последовательно (FIFO); разные соединения: конкурентно.
type Router struct {
	state     *session.State
	docs      DocumentGateway
	out       Outbox
	validator *Validator
	metrics   *metrics
	now       func() time.Time
}

func NewRouter(state *session.State, docs DocumentGateway, out Outbox) (*Router, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	meter := defaultMeter()
	if err := observeState(meter, state); err != nil {
		return nil, fmt.Errorf("session gauges: %w", err)
	}
	return &Router{
		state:     state,
		docs:      docs,
		out:       out,
		validator: v,
		metrics:   newMetrics(meter),
		now:       time.Now,
	}, nil
}

func (r *Router) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

func (r *Router) Dispatch(ctx context.Context, connID string, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.reject(ctx, connID, "", fmt.Errorf("%w: malformed frame: %v", domain.ErrValidation, err))
		return
	}
	r.metrics.event(ctx, env.Type)

	switch env.Type {
	case EventJoinDocument:
		dispatch(ctx, r, connID, env, r.join)
	case EventLeaveDocument:
		dispatch(ctx, r, connID, env, r.leave)
	case EventContentChange:
		dispatch(ctx, r, connID, env, r.contentChange)
	case EventCursorMove:
		dispatch(ctx, r, connID, env, r.cursorMove)
	case EventTypingStatus:
		dispatch(ctx, r, connID, env, r.typingStatus)
	case EventHeartbeat:
		dispatch(ctx, r, connID, env, r.heartbeat)
	case EventSyncRequest:
		dispatch(ctx, r, connID, env, r.syncRequest)
	default:
		r.reject(ctx, connID, env.Type, fmt.Errorf("%w: %q", domain.ErrUnknownEvent, env.Type))
	}
}

// Disconnect вызывается транспортом, когда соединение закрыто.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	dep, ok := r.state.Disconnect(connID)
	if !ok {
		return
	}
	logger.FromContext(ctx).InfoContext(ctx, "participant disconnected",
		"document_id", dep.Participant.DocumentID, "user_id", dep.Participant.UserID)
	announceDeparture(ctx, r.out, dep)
}

func dispatch[T any](ctx context.Context, r *Router, connID string, env Envelope, handle func(context.Context, string, T)) {
	var p T
	if err := r.validator.Decode(env, &p); err != nil {
		r.reject(ctx, connID, env.Type, err)
		return
	}
	handle(ctx, connID, p)
}

func (r *Router) join(ctx context.Context, connID string, p JoinDocumentPayload) {
	res := r.state.Join(connID, p.DocumentID, session.Identity{UserID: p.UserID, DisplayName: p.DisplayName})
	if res.Left != nil {
		announceDeparture(ctx, r.out, *res.Left)
	}

	if !res.Rejoined {
		joined := Message{Type: EventParticipantJoined, Payload: participantInfo(res.Self)}
		for _, other := range res.Others {
			r.send(ctx, other.ConnectionID, joined)
		}
	}

	infos := make([]ParticipantInfo, 0, len(res.Others))
	for _, other := range res.Others {
		infos = append(infos, participantInfo(other))
	}
	r.send(ctx, connID, Message{
		Type:    EventActiveUsersSnapshot,
		Payload: ActiveUsersSnapshotPayload{DocumentID: p.DocumentID, Participants: infos},
	})

	logger.FromContext(ctx).InfoContext(ctx, "participant joined",
		"document_id", p.DocumentID, "user_id", p.UserID, "others", len(res.Others), "rejoined", res.Rejoined)
}

func (r *Router) leave(ctx context.Context, connID string, p DocumentRefPayload) {
	dep, ok := r.state.Leave(connID, p.DocumentID)
	if !ok {
		logger.FromContext(ctx).DebugContext(ctx, "leave ignored: connection not in document", "document_id", p.DocumentID)
		return
	}
	logger.FromContext(ctx).InfoContext(ctx, "participant left", "document_id", p.DocumentID, "user_id", dep.Participant.UserID)
	announceDeparture(ctx, r.out, dep)
}

// contentChange не отменяется: коммит и рассылка доходят до конца даже после отключения отправителя.
func (r *Router) contentChange(ctx context.Context, connID string, p ContentChangePayload) {
	ctx = context.WithoutCancel(ctx)
	r.state.Touch(connID, p.DocumentID, session.Patch{})

	lastModified, err := r.docs.CommitContent(ctx, p.DocumentID, p.Content)
	if err != nil {
		r.syncError(ctx, connID, p.DocumentID, err, "failed to save document")
		if errors.Is(err, domain.ErrDocumentNotFound) {
			r.metrics.commit(ctx, "not_found")
		} else {
			r.metrics.commit(ctx, "error")
		}
		return
	}
	r.metrics.commit(ctx, "ok")

	r.broadcast(ctx, p.DocumentID, connID, Message{
		Type: EventContentUpdated,
		Payload: ContentUpdatedPayload{
			DocumentID:   p.DocumentID,
			Content:      p.Content,
			ConnectionID: connID,
			LastModified: lastModified,
		},
	})
	r.send(ctx, connID, Message{
		Type:    EventContentAck,
		Payload: ContentAckPayload{DocumentID: p.DocumentID, Success: true, Timestamp: r.millis()},
	})
	logger.FromContext(ctx).DebugContext(ctx, "content committed",
		"document_id", p.DocumentID, "content_length", len(p.Content))
}

func (r *Router) cursorMove(ctx context.Context, connID string, p CursorMovePayload) {
	part, ok := r.state.Touch(connID, p.DocumentID, session.Patch{CursorPosition: &p.Position})
	if !ok {
		logger.FromContext(ctx).DebugContext(ctx, "cursor ignored: connection not in document", "document_id", p.DocumentID)
		return
	}
	r.broadcast(ctx, p.DocumentID, connID, Message{
		Type: EventCursorUpdated,
		Payload: CursorUpdatedPayload{
			DocumentID:   p.DocumentID,
			ConnectionID: connID,
			UserID:       part.UserID,
			DisplayName:  part.DisplayName,
			Position:     p.Position,
			Timestamp:    r.millis(),
		},
	})
}

func (r *Router) typingStatus(ctx context.Context, connID string, p TypingStatusPayload) {
	part, ok := r.state.Touch(connID, p.DocumentID, session.Patch{IsTyping: &p.IsTyping, CursorPosition: p.Position})
	if !ok {
		logger.FromContext(ctx).DebugContext(ctx, "typing ignored: connection not in document", "document_id", p.DocumentID)
		return
	}
	r.broadcast(ctx, p.DocumentID, connID, Message{
		Type: EventTypingUpdated,
		Payload: TypingUpdatedPayload{
			DocumentID:   p.DocumentID,
			ConnectionID: connID,
			UserID:       part.UserID,
			DisplayName:  part.DisplayName,
			IsTyping:     p.IsTyping,
			Position:     p.Position,
			Timestamp:    r.millis(),
		},
	})
}

func (r *Router) heartbeat(_ context.Context, connID string, p DocumentRefPayload) {
	r.state.Touch(connID, p.DocumentID, session.Patch{})
}

func (r *Router) syncRequest(ctx context.Context, connID string, p DocumentRefPayload) {
	doc, err := r.docs.FetchContent(ctx, p.DocumentID)
	if err != nil {
		r.syncError(ctx, connID, p.DocumentID, err, "failed to sync document")
		return
	}
	r.send(ctx, connID, Message{
		Type: EventDocumentSnapshot,
		Payload: DocumentSnapshotPayload{
			DocumentID:   doc.ID,
			Content:      doc.Content,
			LastModified: doc.LastModified,
			Timestamp:    r.millis(),
		},
	})
}

func (r *Router) syncError(ctx context.Context, connID, docID string, err error, fallback string) {
	l := logger.FromContext(ctx)
	text := fallback
	if errors.Is(err, domain.ErrDocumentNotFound) {
		text = "document not found"
		l.WarnContext(ctx, "document not found", "document_id", docID)
	} else {
		l.ErrorContext(ctx, "document persistence failed",
			append([]any{"document_id", docID, "err", err}, logger.TraceArgs(ctx)...)...)
	}
	r.send(ctx, connID, Message{Type: EventSyncError, Payload: SyncErrorPayload{DocumentID: docID, Error: text}})
}

func (r *Router) reject(ctx context.Context, connID, eventType string, err error) {
	r.metrics.reject(ctx, eventType)
	logger.FromContext(ctx).WarnContext(ctx, "event rejected", "event", eventType, "err", err)
	r.send(ctx, connID, Message{Type: EventRejected, Payload: EventRejectedPayload{Event: eventType, Error: err.Error()}})
}

// broadcast рассылает всем участникам комнаты, кроме exclude.
func (r *Router) broadcast(ctx context.Context, docID, exclude string, msg Message) {
	sendMany(ctx, r.out, r.state.Recipients(docID, exclude), msg)
}

func (r *Router) send(ctx context.Context, connID string, msg Message) {
	if err := r.out.Send(connID, msg); err != nil {
		logger.FromContext(ctx).DebugContext(ctx, "send failed", "to", connID, "type", msg.Type, "err", err)
	}
}

func (r *Router) millis() int64 {
	return r.now().UnixMilli()
}

func announceDeparture(ctx context.Context, out Outbox, dep session.Departure) {
	msg := Message{
		Type: EventParticipantLeft,
		Payload: ParticipantLeftPayload{
			DocumentID:   dep.Participant.DocumentID,
			ConnectionID: dep.Participant.ConnectionID,
			UserID:       dep.Participant.UserID,
		},
	}
	sendMany(ctx, out, dep.Remaining, msg)
}

func sendMany(ctx context.Context, out Outbox, connIDs []string, msg Message) {
	if len(connIDs) == 0 {
		return
	}
	if err := out.SendMany(connIDs, msg); err != nil {
		logger.FromContext(ctx).DebugContext(ctx, "broadcast partially failed", "type", msg.Type, "err", err)
	}
}

func participantInfo(p domain.Participant) ParticipantInfo {
	return ParticipantInfo{UserID: p.UserID, DisplayName: p.DisplayName, ConnectionID: p.ConnectionID}
}

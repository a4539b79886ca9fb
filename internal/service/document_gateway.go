package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DocumentStore: узкий интерфейс к внешнему хранилищу документов. tx == nil: вне транзакции.
type DocumentStore interface {
	BeginTx(ctx context.Context, iso domain.IsolationLevel) (domain.Tx, error)
	FindByID(ctx context.Context, tx domain.Tx, id string) (*domain.Document, error)
	UpdateContent(ctx context.Context, tx domain.Tx, id, content string, modifiedAt time.Time) (*domain.Document, error)
}

type DocumentGateway struct {
	store  DocumentStore
	iso    domain.IsolationLevel
	now    func() time.Time
	tracer trace.Tracer
}

func NewDocumentGateway(store DocumentStore, iso domain.IsolationLevel) *DocumentGateway {
	if iso == "" {
		iso = domain.ReadCommitted
	}
	return &DocumentGateway{
		store:  store,
		iso:    iso,
		now:    time.Now,
		tracer: otel.Tracer("github.com/cwrk-planet/collab-service/internal/service"),
	}
}

func (g *DocumentGateway) SetClock(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// CommitContent перезаписывает содержимое документа в одной транзакции (last-writer-wins).
// Любая ошибка откатывает транзакцию; повторов нет.
func (g *DocumentGateway) CommitContent(ctx context.Context, id, content string) (_ time.Time, err error) {
	ctx, span := g.tracer.Start(ctx, "DocumentGateway.CommitContent", trace.WithAttributes(
		attribute.String("document.id", id),
		attribute.Int("document.content_length", len(content)),
		attribute.String("db.isolation_level", string(g.iso)),
	))
	defer func() { endSpan(span, err) }()

	tx, err := g.store.BeginTx(ctx, g.iso)
	if err != nil {
		return time.Time{}, persistenceErr("begin tx", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.WarnContext(ctx, "document tx rollback failed",
				append([]any{"document_id", id, "err", rbErr}, logger.TraceArgs(ctx)...)...)
		}
	}()

	if _, err := g.store.FindByID(ctx, tx, id); err != nil {
		return time.Time{}, persistenceErr("find document", err)
	}
	doc, err := g.store.UpdateContent(ctx, tx, id, content, g.now().UTC())
	if err != nil {
		return time.Time{}, persistenceErr("update content", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, persistenceErr("commit", err)
	}
	committed = true

	return doc.LastModified, nil
}

// FetchContent читает документ вне транзакции.
func (g *DocumentGateway) FetchContent(ctx context.Context, id string) (_ *domain.Document, err error) {
	ctx, span := g.tracer.Start(ctx, "DocumentGateway.FetchContent", trace.WithAttributes(
		attribute.String("document.id", id),
	))
	defer func() { endSpan(span, err) }()

	doc, err := g.store.FindByID(ctx, nil, id)
	if err != nil {
		return nil, persistenceErr("find document", err)
	}
	return doc, nil
}

// persistenceErr сохраняет NotFound как есть, остальное помечает ErrPersistence.
func persistenceErr(op string, err error) error {
	if errors.Is(err, domain.ErrDocumentNotFound) || errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrForeignTx = errors.New("postgres: transaction was not opened by this repository")

/*
абстрактный слой над *pgxpool.Pool / pgx.Tx,
чтобы один и тот же запрос выполнялся и в транзакции, и без неё
*/
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type DocumentRepository struct {
	db *pgxpool.Pool
}

func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) BeginTx(ctx context.Context, iso domain.IsolationLevel) (domain.Tx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: toPgxIsoLevel(iso)})
	if err != nil {
		return nil, mapPgError(err)
	}
	return tx, nil
}

// FindByID читает документ; внутри транзакции строка блокируется до commit/rollback.
func (r *DocumentRepository) FindByID(ctx context.Context, tx domain.Tx, id string) (*domain.Document, error) {
	q, err := r.querier(tx)
	if err != nil {
		return nil, err
	}
	query := queryDocumentByID
	if tx != nil {
		query = queryDocumentByIDForUpdate
	}
	return scanDocument(q.QueryRow(ctx, query, id))
}

func (r *DocumentRepository) UpdateContent(ctx context.Context, tx domain.Tx, id, content string, modifiedAt time.Time) (*domain.Document, error) {
	q, err := r.querier(tx)
	if err != nil {
		return nil, err
	}
	return scanDocument(q.QueryRow(ctx, queryUpdateDocumentContent, id, content, modifiedAt))
}

func (r *DocumentRepository) querier(tx domain.Tx) (querier, error) {
	if tx == nil {
		return r.db, nil
	}
	pgTx, ok := tx.(pgx.Tx)
	if !ok {
		return nil, ErrForeignTx
	}
	return pgTx, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	if err := row.Scan(&d.ID, &d.Title, &d.Content, &d.LastModified); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, mapPgError(err)
	}
	return &d, nil
}

func toPgxIsoLevel(iso domain.IsolationLevel) pgx.TxIsoLevel {
	switch iso {
	case domain.ReadUncommitted:
		return pgx.ReadUncommitted
	case domain.RepeatableRead:
		return pgx.RepeatableRead
	case domain.Serializable:
		return pgx.Serializable
	default:
		return pgx.ReadCommitted
	}
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// 22P02 - invalid_text_representation (например, id не uuid)
		case "22P02":
			return domain.ErrDocumentNotFound
		// 40001 - serialization_failure, 40P01 - deadlock_detected
		case "40001", "40P01":
			return fmt.Errorf("%w: %s (%s)", domain.ErrPersistence, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
}

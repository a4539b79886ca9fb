package domain

import (
	"context"
	"time"
)

type Document struct {
	ID           string    `db:"id"`
	Title        string    `db:"title"`
	Content      string    `db:"content"`
	LastModified time.Time `db:"last_modified"`
}

// Tx: открытая транзакция хранилища документов.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

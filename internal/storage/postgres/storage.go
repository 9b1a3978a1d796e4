package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/filmgrid/auth-service/internal/storage"
)

// Storage implements storage.Storage over a *sql.DB by embedding one
// repository per table. newWithDB rebinds the same repositories to a *sql.Tx
// so WithinTx hands callers a fully transactional view.
type Storage struct {
	db *sql.DB
	*UserRepository
	*SessionRepository
	*RefreshTokenRepository
	*PermissionRepository
	*AuditRepository
}

func NewStorage(db *sql.DB) *Storage {
	s := newWithDB(db)
	s.db = db
	return s
}

func newWithDB(db storage.DBTX) *Storage {
	return &Storage{
		UserRepository:         NewUserRepository(db),
		SessionRepository:      NewSessionRepository(db),
		RefreshTokenRepository: NewRefreshTokenRepository(db),
		PermissionRepository:   NewPermissionRepository(db),
		AuditRepository:        NewAuditRepository(db),
	}
}

// WithinTx runs fn inside a single ReadCommitted transaction. A concurrent
// reader sees either none or all of the writes of one login/rotation call.
func (s *Storage) WithinTx(ctx context.Context, fn func(storage.Storage) error) error {
	if s.db == nil {
		return fmt.Errorf("nested transactions are not supported")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(newWithDB(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

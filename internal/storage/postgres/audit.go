package postgres

import (
	"context"
	"fmt"

	"github.com/filmgrid/auth-service/internal/models"
	"github.com/filmgrid/auth-service/internal/storage"
)

type AuditRepository struct {
	db storage.DBTX
}

func NewAuditRepository(db storage.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	query := `INSERT INTO audit_log (actor_id, action, result, detail, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		entry.ActorID,
		entry.Action,
		entry.Result,
		entry.Detail,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

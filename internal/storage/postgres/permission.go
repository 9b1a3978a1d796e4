package postgres

import (
	"context"
	"fmt"

	"github.com/filmgrid/auth-service/internal/storage"
)

type PermissionRepository struct {
	db storage.DBTX
}

func NewPermissionRepository(db storage.DBTX) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) GetRoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	query := `SELECT r.name FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`
	return r.queryStrings(ctx, query, userID)
}

// GetPermissionCodesForUser walks user -> roles -> role_permissions ->
// permissions and returns the deduplicated flat set of codes.
func (r *PermissionRepository) GetPermissionCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	query := `SELECT DISTINCT p.code FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY p.code`
	return r.queryStrings(ctx, query, userID)
}

func (r *PermissionRepository) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

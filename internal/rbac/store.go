package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

var _ Store = (*PGStore)(nil)

func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, COALESCE(description, '') FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *PGStore) EnsurePermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := s.pool.QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, name, description).Scan(&p.ID, &p.Name, &p.Description)
	return p, err
}

func (s *PGStore) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var r Role
	err := s.pool.QueryRow(ctx, `INSERT INTO roles (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description, created_at`, name, description).Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt)
	return r, err
}

// SetRolePermissions replaces permissions for a role.
func (s *PGStore) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id=$1 AND NOT (permission_id = ANY($2))`, roleID, permissionIDs); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`, roleID, permissionIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

func (s *PGStore) AssignBranch(ctx context.Context, userID, branchID int64) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO user_branches (user_id, branch_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, branchID)
	return err
}

func (s *PGStore) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PGStore) UserBranches(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT branch_id FROM user_branches WHERE user_id=$1 ORDER BY branch_id`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *PGStore) LocationBranch(ctx context.Context, locationID int64) (int64, error) {
	var branchID int64
	err := s.pool.QueryRow(ctx, `SELECT branch_id FROM warehouses WHERE id=$1`, locationID).Scan(&branchID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return branchID, err
}

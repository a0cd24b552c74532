package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"StreamAccounts/internal/domain"
)

const roleSelect = `
	SELECT r.name, r.guard_name, COALESCE(group_concat(p.name, ','), '')
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id
`

func scanRoles(rows *sql.Rows) ([]domain.Role, error) {
	defer rows.Close()

	out := []domain.Role{}
	for rows.Next() {
		var (
			r     domain.Role
			perms string
		)
		if err := rows.Scan(&r.Name, &r.GuardName, &perms); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		r.Permissions = []string{}
		if perms != "" {
			r.Permissions = strings.Split(perms, ",")
			sort.Strings(r.Permissions)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return out, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]domain.Role, error) {
	q := roleSelect + ` WHERE r.guard_name = ? GROUP BY r.id ORDER BY r.name`

	rows, err := s.db.QueryContext(ctx, q, domain.GuardWeb)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return scanRoles(rows)
}

func (s *Store) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	q := roleSelect + `
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = ?
		GROUP BY r.id
		ORDER BY r.name
	`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return scanRoles(rows)
}

func (s *Store) AssignRoles(ctx context.Context, userID string, roles []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return grantRoles(ctx, tx, userID, roles)
	})
}

func (s *Store) SyncRoles(ctx context.Context, userID string, roles []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("clear user roles: %w", err)
		}
		return grantRoles(ctx, tx, userID, roles)
	})
}

func (s *Store) RemoveRole(ctx context.Context, userID, role string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		id, err := roleID(ctx, tx, role)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, id); err != nil {
			return fmt.Errorf("remove role: %w", err)
		}
		return nil
	})
}

func roleID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	const q = `SELECT id FROM roles WHERE name = ? AND guard_name = ?`

	var id int64
	if err := tx.QueryRowContext(ctx, q, name, domain.GuardWeb).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("role %q: %w", name, domain.ErrRoleNotFound)
		}
		return 0, fmt.Errorf("lookup role: %w", err)
	}
	return id, nil
}

func grantRoles(ctx context.Context, tx *sql.Tx, userID string, roles []string) error {
	const q = `INSERT OR IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)`

	for _, name := range roles {
		id, err := roleID(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, userID, id); err != nil {
			return fmt.Errorf("grant role: %w", err)
		}
	}
	return nil
}

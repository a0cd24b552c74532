package postgres

import (
	"context"
	"fmt"

	"StreamAccounts/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RolesStore struct {
	pool *pgxpool.Pool
}

func NewRolesStore(pool *pgxpool.Pool) *RolesStore {
	return &RolesStore{pool: pool}
}

const roleSelect = `
	SELECT r.name, r.guard_name,
		COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
	FROM roles r
	LEFT JOIN role_permissions rp ON rp.role_id = r.id
	LEFT JOIN permissions p ON p.id = rp.permission_id
`

func scanRoles(rows pgx.Rows) ([]domain.Role, error) {
	defer rows.Close()

	out := []domain.Role{}
	for rows.Next() {
		var r domain.Role
		if err := rows.Scan(&r.Name, &r.GuardName, &r.Permissions); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return out, nil
}

func (s *RolesStore) ListRoles(ctx context.Context) ([]domain.Role, error) {
	q := roleSelect + `
		WHERE r.guard_name = $1
		GROUP BY r.id
		ORDER BY r.name
	`
	rows, err := s.pool.Query(ctx, q, domain.GuardWeb)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return scanRoles(rows)
}

// ListUserRoles always reads the current assignments; nothing is cached.
func (s *RolesStore) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	q := roleSelect + `
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		GROUP BY r.id
		ORDER BY r.name
	`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		if notFound(err) {
			return []domain.Role{}, nil
		}
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return scanRoles(rows)
}

func (s *RolesStore) AssignRoles(ctx context.Context, userID string, roles []string) error {
	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		return grantRoles(ctx, tx, userID, roles)
	})
}

// SyncRoles replaces the user's roles with exactly roles.
func (s *RolesStore) SyncRoles(ctx context.Context, userID string, roles []string) error {
	const clear = `DELETE FROM user_roles WHERE user_id = $1`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clear, userID); err != nil {
			return mapNotFound(err, "clear user roles")
		}
		return grantRoles(ctx, tx, userID, roles)
	})
}

// RemoveRole is a no-op when the user does not hold role.
func (s *RolesStore) RemoveRole(ctx context.Context, userID, role string) error {
	const q = `
		DELETE FROM user_roles
		WHERE user_id = $1 AND role_id = $2
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		ids, err := roleIDs(ctx, tx, []string{role})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, q, userID, ids[0]); err != nil {
			return mapNotFound(err, "remove role")
		}
		return nil
	})
}

func roleIDs(ctx context.Context, tx pgx.Tx, names []string) ([]int64, error) {
	const q = `
		SELECT id, name
		FROM roles
		WHERE name = ANY($1) AND guard_name = $2
	`

	rows, err := tx.Query(ctx, q, names, domain.GuardWeb)
	if err != nil {
		return nil, fmt.Errorf("lookup roles: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]int64, len(names))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		byName[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup roles: %w", err)
	}

	ids := make([]int64, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("role %q: %w", n, domain.ErrRoleNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func grantRoles(ctx context.Context, tx pgx.Tx, userID string, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	ids, err := roleIDs(ctx, tx, roles)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING
	`
	if _, err := tx.Exec(ctx, q, userID, ids); err != nil {
		return mapNotFound(err, "grant roles")
	}
	return nil
}

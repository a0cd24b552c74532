package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StreamAccounts/internal/domain"

	"github.com/google/uuid"
)

const tokenColumns = `id, user_id, name, token_hash, created_at, last_used_at, revoked_at`

func scanToken(row rowScanner) (domain.AccessToken, error) {
	var (
		t         domain.AccessToken
		createdAt int64
		lastUsed  sql.NullInt64
		revoked   sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &createdAt, &lastUsed, &revoked); err != nil {
		return domain.AccessToken{}, err
	}
	t.CreatedAt = fromMillis(createdAt)
	t.LastUsedAt = millisPtr(lastUsed)
	t.RevokedAt = millisPtr(revoked)
	return t, nil
}

func (s *Store) CreateToken(ctx context.Context, userID, name, tokenHash string, when time.Time) (domain.AccessToken, error) {
	const check = `SELECT 1 FROM users WHERE id = ? AND deleted_at IS NULL`
	const q = `
		INSERT INTO personal_access_tokens (id, user_id, name, token_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	id := uuid.NewString()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, check, userID).Scan(&one); err != nil {
			return mapNotFound(err, "lookup user")
		}
		if _, err := tx.ExecContext(ctx, q, id, userID, name, tokenHash, toMillis(when)); err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.AccessToken{}, err
	}
	return s.GetToken(ctx, id)
}

func (s *Store) GetToken(ctx context.Context, id string) (domain.AccessToken, error) {
	const q = `SELECT ` + tokenColumns + ` FROM personal_access_tokens WHERE id = ?`

	t, err := scanToken(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return domain.AccessToken{}, mapNotFound(err, "get token")
	}
	return t, nil
}

func (s *Store) ListTokens(ctx context.Context, userID string) ([]domain.AccessToken, error) {
	const q = `
		SELECT ` + tokenColumns + `
		FROM personal_access_tokens
		WHERE user_id = ? AND revoked_at IS NULL
		ORDER BY created_at DESC, id
	`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	out := []domain.AccessToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return out, nil
}

func (s *Store) TouchToken(ctx context.Context, id string, when time.Time) error {
	const q = `UPDATE personal_access_tokens SET last_used_at = ? WHERE id = ? AND revoked_at IS NULL`

	if _, err := s.db.ExecContext(ctx, q, toMillis(when), id); err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

func (s *Store) RevokeToken(ctx context.Context, id string, when time.Time) error {
	const q = `UPDATE personal_access_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`

	if _, err := s.db.ExecContext(ctx, q, toMillis(when), id); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *Store) RevokeAllTokens(ctx context.Context, userID string, when time.Time) (int64, error) {
	const q = `UPDATE personal_access_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, toMillis(when), userID)
		if err != nil {
			return fmt.Errorf("revoke all tokens: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

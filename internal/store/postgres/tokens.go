package postgres

import (
	"context"
	"fmt"
	"time"

	"StreamAccounts/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TokensStore struct {
	pool *pgxpool.Pool
}

func NewTokensStore(pool *pgxpool.Pool) *TokensStore {
	return &TokensStore{pool: pool}
}

const tokenColumns = `id, user_id, name, token_hash, created_at, last_used_at, revoked_at`

func scanToken(row pgx.Row) (domain.AccessToken, error) {
	var (
		t          domain.AccessToken
		idUUID     pgtype.UUID
		userIDUUID pgtype.UUID
		lastUsedTS pgtype.Timestamptz
		revokedTS  pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&userIDUUID,
		&t.Name,
		&t.TokenHash,
		&t.CreatedAt,
		&lastUsedTS,
		&revokedTS,
	)
	if err != nil {
		return domain.AccessToken{}, err
	}
	t.ID = uuidOrEmpty(idUUID)
	t.UserID = uuidOrEmpty(userIDUUID)
	t.LastUsedAt = timestamptzPtr(lastUsedTS)
	t.RevokedAt = timestamptzPtr(revokedTS)
	return t, nil
}

// CreateToken takes a shared lock on the owner row so it cannot interleave
// with RevokeAllTokens for the same user.
func (s *TokensStore) CreateToken(ctx context.Context, userID, name, tokenHash string, when time.Time) (domain.AccessToken, error) {
	const lock = `
		SELECT 1 FROM users
		WHERE id = $1 AND deleted_at IS NULL
		FOR SHARE
	`
	const q = `
		INSERT INTO personal_access_tokens (user_id, name, token_hash, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + tokenColumns

	var tok domain.AccessToken
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, lock, userID).Scan(&one); err != nil {
			return mapNotFound(err, "lock user")
		}
		var err error
		tok, err = scanToken(tx.QueryRow(ctx, q, userID, name, tokenHash, when))
		if err != nil {
			return fmt.Errorf("create token: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.AccessToken{}, err
	}
	return tok, nil
}

// GetToken returns the token whether or not it is revoked.
func (s *TokensStore) GetToken(ctx context.Context, id string) (domain.AccessToken, error) {
	const q = `
		SELECT ` + tokenColumns + `
		FROM personal_access_tokens
		WHERE id = $1
	`
	tok, err := scanToken(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return domain.AccessToken{}, mapNotFound(err, "get token")
	}
	return tok, nil
}

func (s *TokensStore) ListTokens(ctx context.Context, userID string) ([]domain.AccessToken, error) {
	const q = `
		SELECT ` + tokenColumns + `
		FROM personal_access_tokens
		WHERE user_id = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		if notFound(err) {
			return []domain.AccessToken{}, nil
		}
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	out := []domain.AccessToken{}
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return out, nil
}

func (s *TokensStore) TouchToken(ctx context.Context, id string, when time.Time) error {
	const q = `
		UPDATE personal_access_tokens
		SET last_used_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	if _, err := s.pool.Exec(ctx, q, id, when); err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

// RevokeToken is idempotent: revoking a revoked or unknown token succeeds.
func (s *TokensStore) RevokeToken(ctx context.Context, id string, when time.Time) error {
	const q = `
		UPDATE personal_access_tokens
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	if _, err := s.pool.Exec(ctx, q, id, when); err != nil {
		if notFound(err) {
			return nil
		}
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeAllTokens locks the owner row first, so a token created
// concurrently either commits before the revocation and is revoked with the
// rest, or waits and is created afterwards.
func (s *TokensStore) RevokeAllTokens(ctx context.Context, userID string, when time.Time) (int64, error) {
	const lock = `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`
	const q = `
		UPDATE personal_access_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	var n int64
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, lock, userID).Scan(&one); err != nil {
			return mapNotFound(err, "lock user")
		}
		tag, err := tx.Exec(ctx, q, userID, when)
		if err != nil {
			return fmt.Errorf("revoke all tokens: %w", err)
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

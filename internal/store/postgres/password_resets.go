package postgres

import (
	"context"
	"fmt"
	"time"

	"StreamAccounts/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PasswordResetStore struct {
	pool *pgxpool.Pool
}

func NewPasswordResetStore(pool *pgxpool.Pool) *PasswordResetStore {
	return &PasswordResetStore{pool: pool}
}

func (s *PasswordResetStore) ReplaceResetToken(ctx context.Context, token domain.PasswordResetToken) error {
	const discard = `
		DELETE FROM password_reset_tokens
		WHERE user_id = $1 AND used_at IS NULL
	`
	const q = `
		INSERT INTO password_reset_tokens (user_id, token_hash, sent_to_email, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, discard, token.UserID); err != nil {
			return fmt.Errorf("discard reset tokens: %w", err)
		}
		_, err := tx.Exec(ctx, q,
			token.UserID,
			token.TokenHash,
			token.SentToEmail,
			token.CreatedAt,
			token.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("create reset token: %w", err)
		}
		return nil
	})
}

// CompletePasswordReset consumes the token with a conditional update, so of
// two concurrent resets with the same token only one succeeds.
func (s *PasswordResetStore) CompletePasswordReset(ctx context.Context, userID, tokenHash, passwordHash string, when time.Time) error {
	const consume = `
		UPDATE password_reset_tokens
		SET used_at = $3
		WHERE user_id = $1 AND token_hash = $2 AND used_at IS NULL AND expires_at > $3
	`
	const setPassword = `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`
	const revoke = `
		UPDATE personal_access_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, consume, userID, tokenHash, when)
		if err != nil {
			if notFound(err) {
				return domain.ErrResetTokenInvalid
			}
			return fmt.Errorf("consume reset token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrResetTokenInvalid
		}

		tag, err = tx.Exec(ctx, setPassword, userID, passwordHash, when)
		if err != nil {
			return fmt.Errorf("set password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrResetTokenInvalid
		}

		if _, err := tx.Exec(ctx, revoke, userID, when); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		return nil
	})
}

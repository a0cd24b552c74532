package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StreamAccounts/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) ReplaceResetToken(ctx context.Context, token domain.PasswordResetToken) error {
	const discard = `DELETE FROM password_reset_tokens WHERE user_id = ? AND used_at IS NULL`
	const q = `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, sent_to_email, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, discard, token.UserID); err != nil {
			return fmt.Errorf("discard reset tokens: %w", err)
		}
		_, err := tx.ExecContext(ctx, q,
			uuid.NewString(),
			token.UserID,
			token.TokenHash,
			token.SentToEmail,
			toMillis(token.CreatedAt),
			toMillis(token.ExpiresAt),
		)
		if err != nil {
			return fmt.Errorf("create reset token: %w", err)
		}
		return nil
	})
}

func (s *Store) CompletePasswordReset(ctx context.Context, userID, tokenHash, passwordHash string, when time.Time) error {
	const consume = `
		UPDATE password_reset_tokens
		SET used_at = ?
		WHERE user_id = ? AND token_hash = ? AND used_at IS NULL AND expires_at > ?
	`
	const setPassword = `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	const revoke = `UPDATE personal_access_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`

	ts := toMillis(when)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, consume, ts, userID, tokenHash, ts)
		if err != nil {
			return fmt.Errorf("consume reset token: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrResetTokenInvalid
		}

		res, err = tx.ExecContext(ctx, setPassword, passwordHash, ts, userID)
		if err != nil {
			return fmt.Errorf("set password: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrResetTokenInvalid
		}

		if _, err := tx.ExecContext(ctx, revoke, ts, userID); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		return nil
	})
}

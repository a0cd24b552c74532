package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StreamAccounts/internal/domain"

	"github.com/google/uuid"
)

const userColumns = `id, email, first_name, last_name, phone, date_of_birth, email_verified_at, created_at, updated_at, deleted_at`

func scanUser(row rowScanner, extra ...any) (domain.User, error) {
	var (
		u          domain.User
		phone      sql.NullString
		dob        sql.NullString
		verifiedAt sql.NullInt64
		createdAt  int64
		updatedAt  int64
		deletedAt  sql.NullInt64
	)
	dest := []any{&u.ID, &u.Email, &u.FirstName, &u.LastName, &phone, &dob, &verifiedAt, &createdAt, &updatedAt, &deletedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.User{}, err
	}
	u.Phone = phone.String
	u.DateOfBirth = datePtr(dob)
	u.EmailVerifiedAt = millisPtr(verifiedAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	u.DeletedAt = millisPtr(deletedAt)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, nu domain.NewUser, roles []string) (domain.User, error) {
	const q = `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, date_of_birth, email_verified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id := uuid.NewString()
	now := toMillis(time.Now())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			id,
			nu.Email,
			nu.PasswordHash,
			nu.FirstName,
			nu.LastName,
			nullIfEmpty(nu.Phone),
			nullDate(nu.DateOfBirth),
			nullMillis(nu.VerifiedAt),
			now,
			now,
		)
		if err != nil {
			if isUniqueViolation(err, "users.email") {
				return domain.ErrEmailTaken
			}
			return fmt.Errorf("create user: %w", err)
		}
		return grantRoles(ctx, tx, id, roles)
	})
	if err != nil {
		return domain.User{}, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = ? AND deleted_at IS NULL`

	u, err := scanUser(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return domain.User{}, mapNotFound(err, "get user by id")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	const q = `SELECT ` + userColumns + `, password_hash FROM users WHERE email = ? AND deleted_at IS NULL`

	var hash string
	u, err := scanUser(s.db.QueryRowContext(ctx, q, email), &hash)
	if err != nil {
		return domain.UserWithPassword{}, mapNotFound(err, "get user by email")
	}
	return domain.UserWithPassword{User: u, PasswordHash: hash}, nil
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string, when time.Time) (bool, error) {
	const q = `
		UPDATE users
		SET email_verified_at = ?, updated_at = ?
		WHERE id = ? AND email_verified_at IS NULL AND deleted_at IS NULL
	`
	res, err := s.db.ExecContext(ctx, q, toMillis(when), toMillis(when), id)
	if err != nil {
		return false, fmt.Errorf("mark email verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark email verified: %w", err)
	}
	return n == 1, nil
}

func (s *Store) SoftDeleteUser(ctx context.Context, id string, when time.Time) error {
	const del = `UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`
	const revoke = `UPDATE personal_access_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`

	ts := toMillis(when)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, del, ts, ts, id)
		if err != nil {
			return fmt.Errorf("soft delete user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, revoke, ts, id); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		return nil
	})
}

func (s *Store) RestoreUser(ctx context.Context, id string) error {
	const q = `UPDATE users SET deleted_at = NULL, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, q, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("restore user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

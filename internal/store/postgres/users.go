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

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

const userColumns = `id, email, first_name, last_name, phone, date_of_birth, email_verified_at, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row, extra ...any) (domain.User, error) {
	var (
		u          domain.User
		idUUID     pgtype.UUID
		phone      pgtype.Text
		dob        pgtype.Date
		verifiedTS pgtype.Timestamptz
		deletedTS  pgtype.Timestamptz
	)
	dest := []any{
		&idUUID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&phone,
		&dob,
		&verifiedTS,
		&u.CreatedAt,
		&u.UpdatedAt,
		&deletedTS,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.User{}, err
	}

	u.ID = uuidOrEmpty(idUUID)
	u.Phone = textOrEmpty(phone)
	u.DateOfBirth = datePtr(dob)
	u.EmailVerifiedAt = timestamptzPtr(verifiedTS)
	u.DeletedAt = timestamptzPtr(deletedTS)
	return u, nil
}

// CreateUser inserts the user and grants roles in one transaction.
func (s *UsersStore) CreateUser(ctx context.Context, nu domain.NewUser, roles []string) (domain.User, error) {
	const q = `
		INSERT INTO users (email, password_hash, first_name, last_name, phone, date_of_birth, email_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	var u domain.User
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		u, err = scanUser(tx.QueryRow(ctx, q,
			nu.Email,
			nu.PasswordHash,
			nu.FirstName,
			nu.LastName,
			nullIfEmpty(nu.Phone),
			nu.DateOfBirth,
			nu.VerifiedAt,
		))
		if err != nil {
			return mapUserWriteError(err)
		}
		return grantRoles(ctx, tx, u.ID, roles)
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *UsersStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	const q = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL
	`

	u, err := scanUser(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return domain.User{}, mapNotFound(err, "get user by id")
	}
	return u, nil
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	const q = `
		SELECT ` + userColumns + `, password_hash
		FROM users
		WHERE email = $1 AND deleted_at IS NULL
	`

	var hash string
	u, err := scanUser(s.pool.QueryRow(ctx, q, email), &hash)
	if err != nil {
		return domain.UserWithPassword{}, mapNotFound(err, "get user by email")
	}
	return domain.UserWithPassword{User: u, PasswordHash: hash}, nil
}

// MarkEmailVerified stamps email_verified_at once. It reports whether this
// call made the transition.
func (s *UsersStore) MarkEmailVerified(ctx context.Context, id string, when time.Time) (bool, error) {
	const q = `
		UPDATE users
		SET email_verified_at = $2, updated_at = now()
		WHERE id = $1 AND email_verified_at IS NULL AND deleted_at IS NULL
	`
	tag, err := s.pool.Exec(ctx, q, id, when)
	if err != nil {
		if notFound(err) {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("mark email verified: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SoftDeleteUser stamps deleted_at and revokes every live token of the user.
func (s *UsersStore) SoftDeleteUser(ctx context.Context, id string, when time.Time) error {
	const del = `
		UPDATE users
		SET deleted_at = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	const revoke = `
		UPDATE personal_access_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, del, id, when)
		if err != nil {
			return mapNotFound(err, "soft delete user")
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		if _, err := tx.Exec(ctx, revoke, id, when); err != nil {
			return fmt.Errorf("revoke tokens: %w", err)
		}
		return nil
	})
}

func (s *UsersStore) RestoreUser(ctx context.Context, id string) error {
	const q = `
		UPDATE users
		SET deleted_at = NULL, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return mapNotFound(err, "restore user")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapUserWriteError(err error) error {
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case "users_email_key":
			return domain.ErrEmailTaken
		default:
			return fmt.Errorf("unique violation (%s): %w", constraint, err)
		}
	}
	return fmt.Errorf("create user: %w", err)
}

// helpers in scan.go

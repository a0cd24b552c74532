package postgres

import (
	"context"
	"fmt"

	"StreamAccounts/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfilesStore struct {
	pool *pgxpool.Pool
}

func NewProfilesStore(pool *pgxpool.Pool) *ProfilesStore {
	return &ProfilesStore{pool: pool}
}

const profileColumns = `id, user_id, name, avatar, kids_mode,
	content_rating, watch_time_limit, require_pin, pin_hash,
	language, subtitle_language, quality, autoplay, notifications,
	created_at, updated_at`

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var (
		p          domain.Profile
		idUUID     pgtype.UUID
		userIDUUID pgtype.UUID
		avatar     pgtype.Text
		watchLimit pgtype.Int4
		pinHash    pgtype.Text
	)
	err := row.Scan(
		&idUUID,
		&userIDUUID,
		&p.Name,
		&avatar,
		&p.KidsMode,
		&p.Parental.ContentRating,
		&watchLimit,
		&p.Parental.RequirePIN,
		&pinHash,
		&p.Preferences.Language,
		&p.Preferences.SubtitleLanguage,
		&p.Preferences.Quality,
		&p.Preferences.Autoplay,
		&p.Preferences.Notifications,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}
	p.ID = uuidOrEmpty(idUUID)
	p.UserID = uuidOrEmpty(userIDUUID)
	p.Avatar = textOrEmpty(avatar)
	p.Parental.WatchTimeLimit = int4Ptr(watchLimit)
	p.Parental.PINHash = textOrEmpty(pinHash)
	return p, nil
}

// CreateProfile counts and inserts under a lock on the owner row, so
// concurrent creates for one user cannot exceed max.
func (s *ProfilesStore) CreateProfile(ctx context.Context, np domain.NewProfile, max int) (domain.Profile, error) {
	const lock = `SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	const count = `SELECT count(*) FROM profiles WHERE user_id = $1`
	const q = `
		INSERT INTO profiles (
			user_id, name, avatar, kids_mode,
			content_rating, watch_time_limit, require_pin, pin_hash,
			language, subtitle_language, quality, autoplay, notifications
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + profileColumns

	var p domain.Profile
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, lock, np.UserID).Scan(&one); err != nil {
			return mapNotFound(err, "lock user")
		}
		var n int
		if err := tx.QueryRow(ctx, count, np.UserID).Scan(&n); err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		if n >= max {
			return &domain.ProfileLimitError{Count: n, Max: max}
		}

		var err error
		p, err = scanProfile(tx.QueryRow(ctx, q,
			np.UserID,
			np.Name,
			nullIfEmpty(np.Avatar),
			np.KidsMode,
			np.Parental.ContentRating,
			intPtrArg(np.Parental.WatchTimeLimit),
			np.Parental.RequirePIN,
			nullIfEmpty(np.Parental.PINHash),
			np.Preferences.Language,
			np.Preferences.SubtitleLanguage,
			np.Preferences.Quality,
			np.Preferences.Autoplay,
			np.Preferences.Notifications,
		))
		if err != nil {
			return mapProfileWriteError(err, "create profile")
		}
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (s *ProfilesStore) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	const q = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE id = $1
	`
	p, err := scanProfile(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		return domain.Profile{}, mapNotFound(err, "get profile")
	}
	return p, nil
}

func (s *ProfilesStore) ListProfiles(ctx context.Context, userID string) ([]domain.Profile, error) {
	const q = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE user_id = $1
		ORDER BY created_at, id
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		if notFound(err) {
			return []domain.Profile{}, nil
		}
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

func (s *ProfilesStore) UpdateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	const q = `
		UPDATE profiles
		SET name = $3, avatar = $4, kids_mode = $5,
			content_rating = $6, watch_time_limit = $7, require_pin = $8, pin_hash = $9,
			language = $10, subtitle_language = $11, quality = $12, autoplay = $13, notifications = $14,
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + profileColumns

	out, err := scanProfile(s.pool.QueryRow(ctx, q,
		p.ID,
		p.UserID,
		p.Name,
		nullIfEmpty(p.Avatar),
		p.KidsMode,
		p.Parental.ContentRating,
		intPtrArg(p.Parental.WatchTimeLimit),
		p.Parental.RequirePIN,
		nullIfEmpty(p.Parental.PINHash),
		p.Preferences.Language,
		p.Preferences.SubtitleLanguage,
		p.Preferences.Quality,
		p.Preferences.Autoplay,
		p.Preferences.Notifications,
	))
	if err != nil {
		if notFound(err) {
			return domain.Profile{}, domain.ErrNotFound
		}
		return domain.Profile{}, mapProfileWriteError(err, "update profile")
	}
	return out, nil
}

// DeleteProfile refuses to remove the owner's last profile. The owner row
// lock serializes concurrent deletes.
func (s *ProfilesStore) DeleteProfile(ctx context.Context, userID, id string) error {
	const lock = `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`
	const count = `SELECT count(*) FROM profiles WHERE user_id = $1`
	const q = `DELETE FROM profiles WHERE id = $1 AND user_id = $2`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		if err := tx.QueryRow(ctx, lock, userID).Scan(&one); err != nil {
			return mapNotFound(err, "lock user")
		}
		var n int
		if err := tx.QueryRow(ctx, count, userID).Scan(&n); err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		if n <= 1 {
			return domain.ErrCannotDeleteOnlyProfile
		}
		tag, err := tx.Exec(ctx, q, id, userID)
		if err != nil {
			return mapNotFound(err, "delete profile")
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func mapProfileWriteError(err error, op string) error {
	if constraint, ok := uniqueViolation(err); ok && constraint == "profiles_user_name_uq" {
		return domain.ErrDuplicateProfileName
	}
	return fmt.Errorf("%s: %w", op, err)
}

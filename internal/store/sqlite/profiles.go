package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StreamAccounts/internal/domain"

	"github.com/google/uuid"
)

const profileColumns = `id, user_id, name, avatar, kids_mode,
	content_rating, watch_time_limit, require_pin, pin_hash,
	language, subtitle_language, quality, autoplay, notifications,
	created_at, updated_at`

func scanProfile(row rowScanner) (domain.Profile, error) {
	var (
		p          domain.Profile
		avatar     sql.NullString
		watchLimit sql.NullInt64
		pinHash    sql.NullString
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
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
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}
	p.Avatar = avatar.String
	p.Parental.WatchTimeLimit = intPtr(watchLimit)
	p.Parental.PINHash = pinHash.String
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return p, nil
}

// CreateProfile counts and inserts inside one immediate transaction, so a
// concurrent create for the same user waits until this one commits.
func (s *Store) CreateProfile(ctx context.Context, np domain.NewProfile, max int) (domain.Profile, error) {
	const check = `SELECT 1 FROM users WHERE id = ? AND deleted_at IS NULL`
	const count = `SELECT count(*) FROM profiles WHERE user_id = ?`
	const q = `
		INSERT INTO profiles (
			id, user_id, name, avatar, kids_mode,
			content_rating, watch_time_limit, require_pin, pin_hash,
			language, subtitle_language, quality, autoplay, notifications,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	id := uuid.NewString()
	now := toMillis(time.Now())
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		if err := tx.QueryRowContext(ctx, check, np.UserID).Scan(&one); err != nil {
			return mapNotFound(err, "lookup user")
		}
		var n int
		if err := tx.QueryRowContext(ctx, count, np.UserID).Scan(&n); err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		if n >= max {
			return &domain.ProfileLimitError{Count: n, Max: max}
		}

		_, err := tx.ExecContext(ctx, q,
			id,
			np.UserID,
			np.Name,
			nullIfEmpty(np.Avatar),
			np.KidsMode,
			np.Parental.ContentRating,
			nullInt(np.Parental.WatchTimeLimit),
			np.Parental.RequirePIN,
			nullIfEmpty(np.Parental.PINHash),
			np.Preferences.Language,
			np.Preferences.SubtitleLanguage,
			np.Preferences.Quality,
			np.Preferences.Autoplay,
			np.Preferences.Notifications,
			now,
			now,
		)
		if err != nil {
			return mapProfileWriteError(err, "create profile")
		}
		return nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return s.GetProfile(ctx, id)
}

func (s *Store) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE id = ?`

	p, err := scanProfile(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return domain.Profile{}, mapNotFound(err, "get profile")
	}
	return p, nil
}

func (s *Store) ListProfiles(ctx context.Context, userID string) ([]domain.Profile, error) {
	const q = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE user_id = ?
		ORDER BY created_at, rowid
	`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
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

func (s *Store) UpdateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	const q = `
		UPDATE profiles
		SET name = ?, avatar = ?, kids_mode = ?,
			content_rating = ?, watch_time_limit = ?, require_pin = ?, pin_hash = ?,
			language = ?, subtitle_language = ?, quality = ?, autoplay = ?, notifications = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`

	res, err := s.db.ExecContext(ctx, q,
		p.Name,
		nullIfEmpty(p.Avatar),
		p.KidsMode,
		p.Parental.ContentRating,
		nullInt(p.Parental.WatchTimeLimit),
		p.Parental.RequirePIN,
		nullIfEmpty(p.Parental.PINHash),
		p.Preferences.Language,
		p.Preferences.SubtitleLanguage,
		p.Preferences.Quality,
		p.Preferences.Autoplay,
		p.Preferences.Notifications,
		toMillis(time.Now()),
		p.ID,
		p.UserID,
	)
	if err != nil {
		return domain.Profile{}, mapProfileWriteError(err, "update profile")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Profile{}, domain.ErrNotFound
	}
	return s.GetProfile(ctx, p.ID)
}

func (s *Store) DeleteProfile(ctx context.Context, userID, id string) error {
	const count = `SELECT count(*) FROM profiles WHERE user_id = ?`
	const q = `DELETE FROM profiles WHERE id = ? AND user_id = ?`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, count, userID).Scan(&n); err != nil {
			return fmt.Errorf("count profiles: %w", err)
		}
		if n <= 1 {
			return domain.ErrCannotDeleteOnlyProfile
		}
		res, err := tx.ExecContext(ctx, q, id, userID)
		if err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func mapProfileWriteError(err error, op string) error {
	if isUniqueViolation(err, "profiles.user_id, profiles.name") {
		return domain.ErrDuplicateProfileName
	}
	return fmt.Errorf("%s: %w", op, err)
}

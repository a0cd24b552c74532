package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"StreamAccounts/internal/auth"
	"StreamAccounts/internal/domain"
)

const DefaultResetTokenTTL = time.Hour

type PasswordResetStore interface {
	// ReplaceResetToken stores token and discards any earlier unused token
	// for the same user.
	ReplaceResetToken(ctx context.Context, token domain.PasswordResetToken) error
	// CompletePasswordReset consumes a live token for userID, stores the new
	// password hash and revokes every access token of the user, all in one
	// transaction. It returns ErrResetTokenInvalid when no live token
	// matches.
	CompletePasswordReset(ctx context.Context, userID, tokenHash, passwordHash string, when time.Time) error
}

type ResetUsersStore interface {
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
}

type PasswordResetService struct {
	Store    PasswordResetStore
	Users    ResetUsersStore
	Policy   auth.PasswordPolicy
	Notifier Notifier
	Links    Links
	TokenTTL time.Duration
	Now      func() time.Time
}

// RequestReset issues a reset token for email and queues the reset email.
// Unknown addresses succeed silently.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (err error) {
	ctx, span := startSpan(ctx, "password_reset.Request")
	defer func() { endSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	u, err := s.Users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	raw, tokenHash, err := newResetToken()
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.Store.ReplaceResetToken(ctx, domain.PasswordResetToken{
		UserID:      u.ID,
		TokenHash:   tokenHash,
		SentToEmail: u.Email,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}); err != nil {
		return err
	}

	if s.Notifier != nil {
		s.Notifier.Notify(ctx, domain.Notification{
			Event:  domain.EventPasswordReset,
			UserID: u.ID,
			Email:  u.Email,
			Name:   u.FirstName,
			Data: map[string]string{
				"url":             s.Links.ResetPassword(raw, u.Email),
				"token":           raw,
				"expires_minutes": strconv.Itoa(int(ttl.Minutes())),
			},
		})
	}
	return nil
}

// ResetPassword sets a new password using a reset token. Success consumes
// the token and signs the user out everywhere.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, rawToken, newPassword string) (err error) {
	ctx, span := startSpan(ctx, "password_reset.Reset")
	defer func() { endSpan(span, err) }()

	if problems := s.Policy.Check(ctx, newPassword); len(problems) > 0 {
		return domain.NewValidationError(map[string][]string{"password": problems})
	}

	u, err := s.Users.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrResetTokenInvalid
		}
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.Store.CompletePasswordReset(ctx, u.ID, hashResetToken(rawToken), hash, s.now())
}

func (s *PasswordResetService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func newResetToken() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("read token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)
	return raw, hashResetToken(raw), nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

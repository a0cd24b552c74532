package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"StreamAccounts/internal/auth"
	"StreamAccounts/internal/domain"
)

const (
	defaultTokenName = "auth_token"
	tokenTouchEvery  = time.Minute
)

type UsersStore interface {
	CreateUser(ctx context.Context, u domain.NewUser, roles []string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
}

type TokensStore interface {
	CreateToken(ctx context.Context, userID, name, tokenHash string, when time.Time) (domain.AccessToken, error)
	GetToken(ctx context.Context, id string) (domain.AccessToken, error)
	ListTokens(ctx context.Context, userID string) ([]domain.AccessToken, error)
	TouchToken(ctx context.Context, id string, when time.Time) error
	RevokeToken(ctx context.Context, id string, when time.Time) error
	RevokeAllTokens(ctx context.Context, userID string, when time.Time) (int64, error)
}

// IssuedToken is returned once, at creation. PlainText is the only copy of
// the credential the server ever hands out.
type IssuedToken struct {
	Token     domain.AccessToken
	PlainText string
}

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Phone       string
	DateOfBirth *time.Time
	DeviceName  string
}

type AuthService struct {
	Users        UsersStore
	Tokens       TokensStore
	Policy       auth.PasswordPolicy
	Verification *VerificationService
	Logger       *slog.Logger
	Now          func() time.Time
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (u domain.User, tok IssuedToken, err error) {
	ctx, span := startSpan(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	if problems := s.Policy.Check(ctx, in.Password); len(problems) > 0 {
		return domain.User{}, IssuedToken{}, domain.NewValidationError(map[string][]string{"password": problems})
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, IssuedToken{}, err
	}

	u, err = s.Users.CreateUser(ctx, domain.NewUser{
		Email:        domain.NormalizeEmail(in.Email),
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		DateOfBirth:  in.DateOfBirth,
	}, []string{domain.DefaultRegisterRole})
	if err != nil {
		return domain.User{}, IssuedToken{}, err
	}

	if s.Verification != nil {
		s.Verification.Send(ctx, u)
	}

	tok, err = s.issueToken(ctx, u.ID, in.DeviceName)
	if err != nil {
		return domain.User{}, IssuedToken{}, err
	}
	return u, tok, nil
}

func (s *AuthService) Login(ctx context.Context, email, password, deviceName string) (u domain.User, tok IssuedToken, err error) {
	ctx, span := startSpan(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	stored, err := s.Users.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			auth.BurnPasswordCheck(password)
			return domain.User{}, IssuedToken{}, domain.ErrInvalidCredentials
		}
		return domain.User{}, IssuedToken{}, err
	}

	ok, err := auth.VerifyPassword(stored.PasswordHash, password)
	if err != nil {
		return domain.User{}, IssuedToken{}, err
	}
	if !ok {
		return domain.User{}, IssuedToken{}, domain.ErrInvalidCredentials
	}
	if !stored.IsVerified() {
		return domain.User{}, IssuedToken{}, &domain.UnverifiedError{UserID: stored.ID}
	}

	tok, err = s.issueToken(ctx, stored.ID, deviceName)
	if err != nil {
		return domain.User{}, IssuedToken{}, err
	}
	return stored.User, tok, nil
}

// Authenticate resolves a presented bearer token to its user. Every failure
// mode (malformed, unknown, revoked, wrong secret, deleted user) collapses to
// ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, plaintext string) (domain.User, domain.AccessToken, error) {
	id, secret, ok := auth.ParseToken(plaintext)
	if !ok {
		return domain.User{}, domain.AccessToken{}, domain.ErrUnauthorized
	}

	tok, err := s.Tokens.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.AccessToken{}, domain.ErrUnauthorized
		}
		return domain.User{}, domain.AccessToken{}, err
	}
	if !auth.SecretMatches(tok.TokenHash, secret) || tok.RevokedAt != nil {
		return domain.User{}, domain.AccessToken{}, domain.ErrUnauthorized
	}

	u, err := s.Users.GetUserByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.AccessToken{}, domain.ErrUnauthorized
		}
		return domain.User{}, domain.AccessToken{}, err
	}

	now := s.now()
	if tok.LastUsedAt == nil || now.Sub(*tok.LastUsedAt) >= tokenTouchEvery {
		if err := s.Tokens.TouchToken(ctx, tok.ID, now); err != nil {
			s.logger().Warn("auth: touch token failed", "err", err, "token_id", tok.ID)
		} else {
			tok.LastUsedAt = &now
		}
	}

	return u, tok, nil
}

func (s *AuthService) Logout(ctx context.Context, tokenID string) error {
	return s.Tokens.RevokeToken(ctx, tokenID, s.now())
}

func (s *AuthService) LogoutAll(ctx context.Context, userID string) (err error) {
	ctx, span := startSpan(ctx, "auth.LogoutAll", userAttr(userID))
	defer func() { endSpan(span, err) }()

	_, err = s.Tokens.RevokeAllTokens(ctx, userID, s.now())
	return err
}

func (s *AuthService) ListTokens(ctx context.Context, userID string) ([]domain.AccessToken, error) {
	return s.Tokens.ListTokens(ctx, userID)
}

// RevokeToken revokes one of the caller's own tokens. Unknown ids succeed
// without effect; a token owned by someone else is forbidden.
func (s *AuthService) RevokeToken(ctx context.Context, userID, tokenID string) error {
	tok, err := s.Tokens.GetToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	if tok.UserID != userID {
		return domain.ErrForbidden
	}
	return s.Tokens.RevokeToken(ctx, tok.ID, s.now())
}

func (s *AuthService) issueToken(ctx context.Context, userID, name string) (IssuedToken, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultTokenName
	}

	secret, hash, err := auth.NewTokenSecret()
	if err != nil {
		return IssuedToken{}, err
	}
	tok, err := s.Tokens.CreateToken(ctx, userID, name, hash, s.now())
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: tok, PlainText: auth.FormatToken(tok.ID, secret)}, nil
}

func (s *AuthService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *AuthService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

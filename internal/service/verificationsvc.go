package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"StreamAccounts/internal/auth"
	"StreamAccounts/internal/domain"
)

type VerificationUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	MarkEmailVerified(ctx context.Context, id string, when time.Time) (bool, error)
}

// Links builds the frontend URLs placed in outbound emails.
type Links struct {
	FrontendURL string
}

func (l Links) VerifyEmail(userID, proof string) string {
	return l.base() + "/verify-email/" + url.PathEscape(userID) + "/" + url.PathEscape(proof)
}

func (l Links) ResetPassword(token, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return l.base() + "/reset-password?" + q.Encode()
}

func (l Links) base() string {
	return strings.TrimRight(l.FrontendURL, "/")
}

type VerificationService struct {
	Users    VerificationUsersStore
	Proofs   auth.ProofSigner
	Notifier Notifier
	Links    Links
	Logger   *slog.Logger
	Now      func() time.Time
}

// Send queues a verification email for u. It reports false, without
// sending, when the address is already verified.
func (s *VerificationService) Send(ctx context.Context, u domain.User) bool {
	if u.IsVerified() {
		return false
	}
	if s.Notifier == nil {
		s.logger().Warn("verification: no notifier configured", "user_id", u.ID)
		return true
	}
	s.Notifier.Notify(ctx, domain.Notification{
		Event:  domain.EventEmailVerification,
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.FirstName,
		Data: map[string]string{
			"url": s.Links.VerifyEmail(u.ID, s.Proofs.Proof(u.ID)),
		},
	})
	return true
}

// Resend looks the user up again so a verification that completed since
// the token was resolved is honored.
func (s *VerificationService) Resend(ctx context.Context, userID string) (sent bool, err error) {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.Send(ctx, u), nil
}

// Verify checks proof for userID and marks the address verified. An already
// verified user succeeds with alreadyVerified set, whatever the proof.
func (s *VerificationService) Verify(ctx context.Context, userID, proof string) (u domain.User, alreadyVerified bool, err error) {
	ctx, span := startSpan(ctx, "verification.Verify", userAttr(userID))
	defer func() { endSpan(span, err) }()

	u, err = s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, false, err
	}
	if u.IsVerified() {
		return u, true, nil
	}
	if !s.Proofs.Valid(u.ID, proof) {
		return domain.User{}, false, domain.ErrInvalidVerificationProof
	}

	if _, err := s.Users.MarkEmailVerified(ctx, u.ID, s.now()); err != nil {
		return domain.User{}, false, err
	}
	u, err = s.Users.GetUserByID(ctx, u.ID)
	if err != nil {
		return domain.User{}, false, err
	}
	return u, false, nil
}

func (s *VerificationService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *VerificationService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

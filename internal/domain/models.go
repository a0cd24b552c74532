package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

type User struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	Phone           string
	DateOfBirth     *time.Time
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

func (u User) IsVerified() bool { return u.EmailVerifiedAt != nil }

func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type UserWithPassword struct {
	User
	PasswordHash string
}

type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Phone        string
	DateOfBirth  *time.Time
	VerifiedAt   *time.Time
}

// AccessToken is one issued bearer credential. TokenHash is the SHA-256 of
// the secret half; the plaintext is never stored.
type AccessToken struct {
	ID         string
	UserID     string
	Name       string
	TokenHash  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

type PasswordResetToken struct {
	ID          string
	UserID      string
	TokenHash   string
	SentToEmail string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	UsedAt      *time.Time
}

const GuardWeb = "web"

type Role struct {
	Name        string
	GuardName   string
	Permissions []string
}

const (
	RoleSuperAdmin      = "Super Admin"
	RoleProductionHouse = "Production House"
	RoleSubscriber      = "Subscriber"

	PermManageUsers   = "manage_users"
	PermManageContent = "manage_content"
	PermUploadVideo   = "upload_video"
	PermViewAnalytics = "view_analytics"
	PermStreamContent = "stream_content"
)

const DefaultRegisterRole = RoleSubscriber

// NormalizeEmail trims and case-folds an address so that lookups and the
// unique index agree regardless of how the user typed it.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

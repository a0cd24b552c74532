package service

import (
	"context"
	"strings"
	"time"

	"StreamAccounts/internal/domain"
)

type AdminUsersStore interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	// SoftDeleteUser marks the user deleted and revokes all of their access
	// tokens in the same transaction.
	SoftDeleteUser(ctx context.Context, id string, when time.Time) error
	RestoreUser(ctx context.Context, id string) error
}

type UserDetail struct {
	User  domain.User
	Roles []domain.Role
}

type AdminService struct {
	Users AdminUsersStore
	Roles RolesStore
	Now   func() time.Time
}

func (s *AdminService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.Roles.ListRoles(ctx)
}

func (s *AdminService) GetUser(ctx context.Context, id string) (UserDetail, error) {
	u, err := s.Users.GetUserByID(ctx, id)
	if err != nil {
		return UserDetail{}, err
	}
	roles, err := s.Roles.ListUserRoles(ctx, u.ID)
	if err != nil {
		return UserDetail{}, err
	}
	return UserDetail{User: u, Roles: roles}, nil
}

func (s *AdminService) AssignRoles(ctx context.Context, userID string, roles []string) (UserDetail, error) {
	roles, err := cleanRoleNames(roles)
	if err != nil {
		return UserDetail{}, err
	}
	if _, err := s.Users.GetUserByID(ctx, userID); err != nil {
		return UserDetail{}, err
	}
	if err := s.Roles.AssignRoles(ctx, userID, roles); err != nil {
		return UserDetail{}, err
	}
	return s.GetUser(ctx, userID)
}

// SyncRoles replaces the user's role set. An empty list strips every role.
func (s *AdminService) SyncRoles(ctx context.Context, userID string, roles []string) (UserDetail, error) {
	clean := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			clean = append(clean, r)
		}
	}
	if _, err := s.Users.GetUserByID(ctx, userID); err != nil {
		return UserDetail{}, err
	}
	if err := s.Roles.SyncRoles(ctx, userID, clean); err != nil {
		return UserDetail{}, err
	}
	return s.GetUser(ctx, userID)
}

func (s *AdminService) RemoveRole(ctx context.Context, userID, role string) (UserDetail, error) {
	if _, err := s.Users.GetUserByID(ctx, userID); err != nil {
		return UserDetail{}, err
	}
	if err := s.Roles.RemoveRole(ctx, userID, strings.TrimSpace(role)); err != nil {
		return UserDetail{}, err
	}
	return s.GetUser(ctx, userID)
}

// DeleteUser soft-deletes a user. Admins cannot delete themselves.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return domain.FieldError("user", "cannot delete your own account")
	}
	return s.Users.SoftDeleteUser(ctx, userID, s.now())
}

func (s *AdminService) RestoreUser(ctx context.Context, userID string) (UserDetail, error) {
	if err := s.Users.RestoreUser(ctx, userID); err != nil {
		return UserDetail{}, err
	}
	return s.GetUser(ctx, userID)
}

func (s *AdminService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func cleanRoleNames(roles []string) ([]string, error) {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, domain.FieldError("roles", "at least one role is required")
	}
	return out, nil
}

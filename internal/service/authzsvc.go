package service

import (
	"context"

	"StreamAccounts/internal/domain"
)

type RolesStore interface {
	ListRoles(ctx context.Context) ([]domain.Role, error)
	ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error)
	AssignRoles(ctx context.Context, userID string, roles []string) error
	SyncRoles(ctx context.Context, userID string, roles []string) error
	RemoveRole(ctx context.Context, userID, role string) error
}

// Guard is a role or permission requirement. With MatchAll unset the user
// needs any one of Names; with it set, every one.
type Guard struct {
	Kind     domain.GuardKind
	Names    []string
	MatchAll bool
}

func AnyRole(names ...string) Guard {
	return Guard{Kind: domain.GuardRole, Names: names}
}

func AllRoles(names ...string) Guard {
	return Guard{Kind: domain.GuardRole, Names: names, MatchAll: true}
}

func AnyPermission(names ...string) Guard {
	return Guard{Kind: domain.GuardPermission, Names: names}
}

func AllPermissions(names ...string) Guard {
	return Guard{Kind: domain.GuardPermission, Names: names, MatchAll: true}
}

// AuthzService answers role and permission questions. Nothing is cached:
// each call reads the user's current role set, so a role change applies to
// the very next request.
type AuthzService struct {
	Store RolesStore
}

func (s *AuthzService) UserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return s.Store.ListUserRoles(ctx, userID)
}

func (s *AuthzService) Permissions(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.Store.ListUserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	return domain.SortedPermissions(roles), nil
}

func (s *AuthzService) Allows(ctx context.Context, userID string, g Guard) (bool, error) {
	roles, err := s.Store.ListUserRoles(ctx, userID)
	if err != nil {
		return false, err
	}

	var have map[string]bool
	switch g.Kind {
	case domain.GuardRole:
		have = domain.RoleSet(roles)
	case domain.GuardPermission:
		have = domain.PermissionsOf(roles)
	default:
		return false, nil
	}

	if g.MatchAll {
		return domain.MatchAll(have, g.Names), nil
	}
	return domain.MatchAny(have, g.Names), nil
}

// Check is Allows as an error: nil on success, *domain.GuardError when the
// user lacks the requirement.
func (s *AuthzService) Check(ctx context.Context, userID string, g Guard) error {
	ok, err := s.Allows(ctx, userID, g)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.GuardError{Kind: g.Kind, Required: g.Names}
	}
	return nil
}

func (s *AuthzService) HasAnyRole(ctx context.Context, userID string, roles ...string) (bool, error) {
	return s.Allows(ctx, userID, AnyRole(roles...))
}

func (s *AuthzService) HasAllRoles(ctx context.Context, userID string, roles ...string) (bool, error) {
	return s.Allows(ctx, userID, AllRoles(roles...))
}

func (s *AuthzService) HasAnyPermission(ctx context.Context, userID string, perms ...string) (bool, error) {
	return s.Allows(ctx, userID, AnyPermission(perms...))
}

func (s *AuthzService) HasAllPermissions(ctx context.Context, userID string, perms ...string) (bool, error) {
	return s.Allows(ctx, userID, AllPermissions(perms...))
}

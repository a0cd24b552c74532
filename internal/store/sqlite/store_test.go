package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"StreamAccounts/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, email string) domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), domain.NewUser{
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
	}, []string{domain.RoleSubscriber})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func newProfile(userID, name string) domain.NewProfile {
	return domain.NewProfile{
		UserID:      userID,
		Name:        name,
		Parental:    domain.DefaultParentalControls(),
		Preferences: domain.DefaultPreferences(),
	}
}

func TestUsersCreateAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	u, err := s.CreateUser(ctx, domain.NewUser{
		Email:        "ada@example.com",
		PasswordHash: "hash",
		FirstName:    "Ada",
		Phone:        "+1 555",
		DateOfBirth:  &dob,
	}, []string{domain.RoleSubscriber})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.IsVerified() || u.Phone != "+1 555" || !u.DateOfBirth.Equal(dob) {
		t.Fatalf("unexpected user: %+v", u)
	}

	got, err := s.GetUserByEmail(ctx, "ada@example.com")
	if err != nil || got.ID != u.ID || got.PasswordHash != "hash" {
		t.Fatalf("GetUserByEmail: %+v %v", got, err)
	}
	if _, err := s.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = s.CreateUser(ctx, domain.NewUser{Email: "ada@example.com", PasswordHash: "x"}, nil)
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}

	roles, err := s.ListUserRoles(ctx, u.ID)
	if err != nil || len(roles) != 1 || roles[0].Name != domain.RoleSubscriber {
		t.Fatalf("expected default role, got %+v %v", roles, err)
	}
}

func TestCreateUserRollsBackOnUnknownRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, domain.NewUser{Email: "x@example.com", PasswordHash: "h"}, []string{"Wizard"})
	if !errors.Is(err, domain.ErrRoleNotFound) {
		t.Fatalf("expected role not found, got %v", err)
	}
	if _, err := s.GetUserByEmail(ctx, "x@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected user insert to roll back, got %v", err)
	}
}

func TestMarkEmailVerifiedOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	changed, err := s.MarkEmailVerified(ctx, u.ID, first)
	if err != nil || !changed {
		t.Fatalf("expected transition, got %v %v", changed, err)
	}
	changed, err = s.MarkEmailVerified(ctx, u.ID, first.Add(time.Hour))
	if err != nil || changed {
		t.Fatalf("expected no second transition, got %v %v", changed, err)
	}
	got, _ := s.GetUserByID(ctx, u.ID)
	if got.EmailVerifiedAt == nil || !got.EmailVerifiedAt.Equal(first) {
		t.Fatalf("verified_at changed: %v", got.EmailVerifiedAt)
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	tok, err := s.CreateToken(ctx, u.ID, "phone", "h1", time.Now())
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	if err := s.SoftDeleteUser(ctx, u.ID, time.Now()); err != nil {
		t.Fatalf("SoftDeleteUser: %v", err)
	}
	if _, err := s.GetUserByID(ctx, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted user hidden, got %v", err)
	}
	if got, _ := s.GetToken(ctx, tok.ID); got.RevokedAt == nil {
		t.Fatalf("expected tokens revoked on delete")
	}
	if _, err := s.CreateToken(ctx, u.ID, "phone", "h2", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no tokens for deleted user, got %v", err)
	}
	if err := s.SoftDeleteUser(ctx, u.ID, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	if err := s.RestoreUser(ctx, u.ID); err != nil {
		t.Fatalf("RestoreUser: %v", err)
	}
	if _, err := s.GetUserByID(ctx, u.ID); err != nil {
		t.Fatalf("expected restored user, got %v", err)
	}
	if err := s.RestoreUser(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTokensRevocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	other := createUser(t, s, "b@example.com")

	for _, name := range []string{"phone", "tv", "laptop"} {
		if _, err := s.CreateToken(ctx, u.ID, name, "hash-"+name, time.Now()); err != nil {
			t.Fatalf("CreateToken: %v", err)
		}
	}
	keep, err := s.CreateToken(ctx, other.ID, "phone", "other", time.Now())
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	list, err := s.ListTokens(ctx, u.ID)
	if err != nil || len(list) != 3 {
		t.Fatalf("expected 3 tokens, got %d %v", len(list), err)
	}

	if err := s.RevokeToken(ctx, list[0].ID, time.Now()); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if err := s.RevokeToken(ctx, list[0].ID, time.Now()); err != nil {
		t.Fatalf("expected idempotent revoke, got %v", err)
	}
	if err := s.RevokeToken(ctx, "missing", time.Now()); err != nil {
		t.Fatalf("expected unknown revoke to succeed, got %v", err)
	}

	n, err := s.RevokeAllTokens(ctx, u.ID, time.Now())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 revoked, got %d %v", n, err)
	}
	if list, _ := s.ListTokens(ctx, u.ID); len(list) != 0 {
		t.Fatalf("expected no live tokens, got %d", len(list))
	}
	if got, _ := s.GetToken(ctx, keep.ID); got.RevokedAt != nil {
		t.Fatalf("expected other user's token untouched")
	}

	when := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := s.TouchToken(ctx, keep.ID, when); err != nil {
		t.Fatalf("TouchToken: %v", err)
	}
	if got, _ := s.GetToken(ctx, keep.ID); got.LastUsedAt == nil || !got.LastUsedAt.Equal(when) {
		t.Fatalf("expected last_used_at, got %v", got.LastUsedAt)
	}
}

func TestRevokeAllTokensRacesCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "race@example.com")

	const creators = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []string
		revoked int64
	)
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				tok, err := s.CreateToken(ctx, u.ID, "device", "hash-"+string(rune('a'+i))+string(rune('a'+j)), time.Now())
				if err != nil {
					t.Errorf("CreateToken: %v", err)
					return
				}
				mu.Lock()
				created = append(created, tok.ID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := s.RevokeAllTokens(ctx, u.ID, time.Now())
		if err != nil {
			t.Errorf("RevokeAllTokens: %v", err)
			return
		}
		mu.Lock()
		revoked = n
		mu.Unlock()
	}()
	wg.Wait()

	live, err := s.ListTokens(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if int(revoked)+len(live) != len(created) {
		t.Fatalf("expected every token revoked or live: %d revoked + %d live != %d created", revoked, len(live), len(created))
	}
	stamped := 0
	for _, id := range created {
		tok, err := s.GetToken(ctx, id)
		if err != nil {
			t.Fatalf("GetToken: %v", err)
		}
		if tok.RevokedAt != nil {
			stamped++
		}
	}
	if int64(stamped) != revoked {
		t.Fatalf("expected %d revoked tokens, found %d", revoked, stamped)
	}

	n, err := s.RevokeAllTokens(ctx, u.ID, time.Now())
	if err != nil || int(n) != len(live) {
		t.Fatalf("expected second revoke to catch %d late tokens, got %d %v", len(live), n, err)
	}
	if list, _ := s.ListTokens(ctx, u.ID); len(list) != 0 {
		t.Fatalf("expected no live tokens, got %d", len(list))
	}
}

func TestPasswordResetSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")
	if _, err := s.CreateToken(ctx, u.ID, "phone", "h", time.Now()); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	now := time.Now().UTC()

	for _, hash := range []string{"first", "second"} {
		err := s.ReplaceResetToken(ctx, domain.PasswordResetToken{
			UserID:      u.ID,
			TokenHash:   hash,
			SentToEmail: u.Email,
			CreatedAt:   now,
			ExpiresAt:   now.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("ReplaceResetToken: %v", err)
		}
	}

	if err := s.CompletePasswordReset(ctx, u.ID, "first", "new", now); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected replaced token to be invalid, got %v", err)
	}
	if err := s.CompletePasswordReset(ctx, u.ID, "second", "new", now.Add(2*time.Hour)); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
	if err := s.CompletePasswordReset(ctx, u.ID, "second", "new", now); err != nil {
		t.Fatalf("CompletePasswordReset: %v", err)
	}
	if err := s.CompletePasswordReset(ctx, u.ID, "second", "newer", now); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected single use, got %v", err)
	}

	got, _ := s.GetUserByEmail(ctx, u.Email)
	if got.PasswordHash != "new" {
		t.Fatalf("expected password updated, got %q", got.PasswordHash)
	}
	if list, _ := s.ListTokens(ctx, u.ID); len(list) != 0 {
		t.Fatalf("expected tokens revoked after reset")
	}
}

func TestRolesCatalogAndAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	roles, err := s.ListRoles(ctx)
	if err != nil || len(roles) != 3 {
		t.Fatalf("expected seeded roles, got %+v %v", roles, err)
	}
	perms := map[string]int{}
	for _, r := range roles {
		perms[r.Name] = len(r.Permissions)
	}
	if perms[domain.RoleSuperAdmin] != 5 || perms[domain.RoleProductionHouse] != 3 || perms[domain.RoleSubscriber] != 1 {
		t.Fatalf("unexpected catalog: %v", perms)
	}

	if err := s.AssignRoles(ctx, u.ID, []string{domain.RoleProductionHouse, domain.RoleSubscriber}); err != nil {
		t.Fatalf("AssignRoles: %v", err)
	}
	if got, _ := s.ListUserRoles(ctx, u.ID); len(got) != 2 {
		t.Fatalf("expected 2 roles, got %+v", got)
	}
	if err := s.AssignRoles(ctx, u.ID, []string{domain.RoleSuperAdmin, "Wizard"}); !errors.Is(err, domain.ErrRoleNotFound) {
		t.Fatalf("expected role not found, got %v", err)
	}
	if got, _ := s.ListUserRoles(ctx, u.ID); len(got) != 2 {
		t.Fatalf("expected failed assign to leave roles unchanged, got %+v", got)
	}

	if err := s.SyncRoles(ctx, u.ID, []string{domain.RoleSuperAdmin}); err != nil {
		t.Fatalf("SyncRoles: %v", err)
	}
	got, _ := s.ListUserRoles(ctx, u.ID)
	if len(got) != 1 || got[0].Name != domain.RoleSuperAdmin {
		t.Fatalf("unexpected roles after sync: %+v", got)
	}

	if err := s.RemoveRole(ctx, u.ID, domain.RoleSuperAdmin); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	if err := s.RemoveRole(ctx, u.ID, domain.RoleSuperAdmin); err != nil {
		t.Fatalf("expected idempotent remove, got %v", err)
	}
	if got, _ := s.ListUserRoles(ctx, u.ID); len(got) != 0 {
		t.Fatalf("expected no roles, got %+v", got)
	}
}

func TestProfileCapHoldsUnderConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	const attempts = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		limited int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CreateProfile(ctx, newProfile(u.ID, "profile-"+string(rune('a'+i))), domain.MaxProfilesPerUser)
			mu.Lock()
			defer mu.Unlock()
			var limitErr *domain.ProfileLimitError
			switch {
			case err == nil:
				created++
			case errors.As(err, &limitErr):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != domain.MaxProfilesPerUser || limited != attempts-domain.MaxProfilesPerUser {
		t.Fatalf("expected %d created, got %d created %d limited", domain.MaxProfilesPerUser, created, limited)
	}
	list, _ := s.ListProfiles(ctx, u.ID)
	if len(list) != domain.MaxProfilesPerUser {
		t.Fatalf("expected %d stored profiles, got %d", domain.MaxProfilesPerUser, len(list))
	}
}

func TestProfileNameUniquePerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, "a@example.com")
	b := createUser(t, s, "b@example.com")

	if _, err := s.CreateProfile(ctx, newProfile(a.ID, "Kids"), 5); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, err := s.CreateProfile(ctx, newProfile(a.ID, "Kids"), 5); !errors.Is(err, domain.ErrDuplicateProfileName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	if _, err := s.CreateProfile(ctx, newProfile(b.ID, "Kids"), 5); err != nil {
		t.Fatalf("expected name reuse across users, got %v", err)
	}
	other, err := s.CreateProfile(ctx, newProfile(a.ID, "Main"), 5)
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	other.Name = "Kids"
	if _, err := s.UpdateProfile(ctx, other); !errors.Is(err, domain.ErrDuplicateProfileName) {
		t.Fatalf("expected duplicate name on rename, got %v", err)
	}
}

func TestUpdateProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	np := newProfile(u.ID, "Main")
	np.Avatar = "avatars/1.png"
	p, err := s.CreateProfile(ctx, np, 5)
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if p.Avatar != "avatars/1.png" || p.Parental.ContentRating != "G" || !p.Preferences.Autoplay {
		t.Fatalf("unexpected profile: %+v", p)
	}

	limit := 90
	p.Avatar = ""
	p.KidsMode = true
	p.Parental.WatchTimeLimit = &limit
	p.Parental.RequirePIN = true
	p.Parental.PINHash = "pin-hash"
	p.Preferences.Quality = "1080p"
	p.Preferences.Autoplay = false
	got, err := s.UpdateProfile(ctx, p)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.Avatar != "" || !got.KidsMode || *got.Parental.WatchTimeLimit != 90 || !got.Parental.HasPIN() ||
		got.Preferences.Quality != "1080p" || got.Preferences.Autoplay {
		t.Fatalf("unexpected updated profile: %+v", got)
	}

	p.UserID = "someone-else"
	if _, err := s.UpdateProfile(ctx, p); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected owner mismatch to miss, got %v", err)
	}
}

func TestDeleteProfileKeepsLastOne(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "a@example.com")

	first, _ := s.CreateProfile(ctx, newProfile(u.ID, "One"), 5)
	second, _ := s.CreateProfile(ctx, newProfile(u.ID, "Two"), 5)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = s.DeleteProfile(ctx, u.ID, id)
		}(i, id)
	}
	wg.Wait()

	ok, floor := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrCannotDeleteOnlyProfile):
			floor++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || floor != 1 {
		t.Fatalf("expected one delete and one refusal, got %d/%d", ok, floor)
	}
	if list, _ := s.ListProfiles(ctx, u.ID); len(list) != 1 {
		t.Fatalf("expected one remaining profile, got %d", len(list))
	}
}

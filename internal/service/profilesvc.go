package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"StreamAccounts/internal/auth"
	"StreamAccounts/internal/domain"
)

type ProfilesStore interface {
	// CreateProfile inserts p unless its owner already has max profiles. The
	// count check and the insert happen as one atomic unit; a full account
	// yields *domain.ProfileLimitError.
	CreateProfile(ctx context.Context, p domain.NewProfile, max int) (domain.Profile, error)
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
	// ListProfiles returns the user's profiles oldest first.
	ListProfiles(ctx context.Context, userID string) ([]domain.Profile, error)
	// UpdateProfile writes every mutable column of p, matching on both id
	// and owner.
	UpdateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error)
	// DeleteProfile removes the profile unless it is the owner's last one,
	// atomically with respect to concurrent deletes.
	DeleteProfile(ctx context.Context, userID, id string) error
}

// ActiveProfileStore holds the per-user "current profile" pointer.
type ActiveProfileStore interface {
	Get(ctx context.Context, userID string) (profileID string, ok bool, err error)
	Set(ctx context.Context, userID, profileID string) error
	// ClearIf removes the pointer only while it still targets profileID.
	ClearIf(ctx context.Context, userID, profileID string) error
}

type CreateProfileInput struct {
	Name        string
	Avatar      string
	KidsMode    bool
	Parental    *domain.ParentalControlsPatch
	Preferences *domain.PreferencesPatch
}

type ProfileList struct {
	Profiles  []domain.Profile
	CurrentID string
	Limit     int
}

func (l ProfileList) Remaining() int {
	if r := l.Limit - len(l.Profiles); r > 0 {
		return r
	}
	return 0
}

type ProfileService struct {
	Store  ProfilesStore
	Active ActiveProfileStore
	Logger *slog.Logger
}

// requireOwnership is applied to every profile read or write before any
// other rule.
func requireOwnership(userID string, p domain.Profile) error {
	if p.UserID != userID {
		return domain.ErrNotOwner
	}
	return nil
}

func (s *ProfileService) owned(ctx context.Context, userID, id string) (domain.Profile, error) {
	p, err := s.Store.GetProfile(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := requireOwnership(userID, p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (s *ProfileService) List(ctx context.Context, userID string) (ProfileList, error) {
	profiles, err := s.Store.ListProfiles(ctx, userID)
	if err != nil {
		return ProfileList{}, err
	}
	out := ProfileList{Profiles: profiles, Limit: domain.MaxProfilesPerUser}
	if len(profiles) == 0 {
		return out, nil
	}

	out.CurrentID = profiles[0].ID
	if id, ok := s.pointer(ctx, userID); ok {
		for _, p := range profiles {
			if p.ID == id {
				out.CurrentID = id
				break
			}
		}
	}
	return out, nil
}

func (s *ProfileService) Create(ctx context.Context, userID string, in CreateProfileInput) (p domain.Profile, err error) {
	ctx, span := startSpan(ctx, "profiles.Create", userAttr(userID))
	defer func() { endSpan(span, err) }()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Profile{}, domain.FieldError("name", "is required")
	}

	parental := domain.DefaultParentalControls()
	if in.Parental != nil {
		if parental, err = applyParental(parental, *in.Parental); err != nil {
			return domain.Profile{}, err
		}
	}
	prefs := domain.DefaultPreferences()
	if in.Preferences != nil {
		prefs = prefs.Apply(*in.Preferences)
	}

	return s.Store.CreateProfile(ctx, domain.NewProfile{
		UserID:      userID,
		Name:        name,
		Avatar:      strings.TrimSpace(in.Avatar),
		KidsMode:    in.KidsMode,
		Parental:    parental,
		Preferences: prefs,
	}, domain.MaxProfilesPerUser)
}

func (s *ProfileService) Get(ctx context.Context, userID, id string) (domain.Profile, error) {
	return s.owned(ctx, userID, id)
}

func (s *ProfileService) Update(ctx context.Context, userID, id string, patch domain.ProfilePatch) (domain.Profile, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return domain.Profile{}, err
	}

	if patch.Name.Present() {
		name := strings.TrimSpace(patch.Name.Value)
		if name == "" {
			return domain.Profile{}, domain.FieldError("name", "is required")
		}
		p.Name = name
	}
	if patch.Avatar.Set {
		p.Avatar = strings.TrimSpace(patch.Avatar.Value)
	}
	if patch.KidsMode.Present() {
		p.KidsMode = patch.KidsMode.Value
	}
	if patch.Parental != nil {
		if p.Parental, err = applyParental(p.Parental, *patch.Parental); err != nil {
			return domain.Profile{}, err
		}
	}
	if patch.Preferences != nil {
		p.Preferences = p.Preferences.Apply(*patch.Preferences)
	}

	return s.Store.UpdateProfile(ctx, p)
}

func (s *ProfileService) UpdateParentalControls(ctx context.Context, userID, id string, patch domain.ParentalControlsPatch) (domain.Profile, error) {
	return s.Update(ctx, userID, id, domain.ProfilePatch{Parental: &patch})
}

func (s *ProfileService) UpdatePreferences(ctx context.Context, userID, id string, patch domain.PreferencesPatch) (domain.Profile, error) {
	return s.Update(ctx, userID, id, domain.ProfilePatch{Preferences: &patch})
}

// Delete removes a profile and, if it was the user's current one, clears
// the pointer.
func (s *ProfileService) Delete(ctx context.Context, userID, id string) (err error) {
	ctx, span := startSpan(ctx, "profiles.Delete", userAttr(userID))
	defer func() { endSpan(span, err) }()

	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteProfile(ctx, userID, p.ID); err != nil {
		return err
	}
	if s.Active != nil {
		if err := s.Active.ClearIf(ctx, userID, p.ID); err != nil {
			s.logger().Warn("profiles: clear active pointer failed", "err", err, "user_id", userID, "profile_id", p.ID)
		}
	}
	return nil
}

func (s *ProfileService) Switch(ctx context.Context, userID, id string) (domain.Profile, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return domain.Profile{}, err
	}
	if s.Active == nil {
		return domain.Profile{}, errors.New("active profile store unavailable")
	}
	if err := s.Active.Set(ctx, userID, p.ID); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// Current returns the profile the pointer targets, falling back to the
// oldest profile when the pointer is unset or stale.
func (s *ProfileService) Current(ctx context.Context, userID string) (domain.Profile, error) {
	if id, ok := s.pointer(ctx, userID); ok {
		p, err := s.Store.GetProfile(ctx, id)
		switch {
		case err == nil && p.UserID == userID:
			return p, nil
		case err == nil, errors.Is(err, domain.ErrNotFound):
			if s.Active != nil {
				if err := s.Active.ClearIf(ctx, userID, id); err != nil {
					s.logger().Warn("profiles: clear stale pointer failed", "err", err, "user_id", userID)
				}
			}
		default:
			return domain.Profile{}, err
		}
	}

	profiles, err := s.Store.ListProfiles(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	if len(profiles) == 0 {
		return domain.Profile{}, domain.ErrNoProfileFound
	}
	return profiles[0], nil
}

// VerifyPIN checks a PIN against the profile gate. Profiles without a
// required PIN always pass.
func (s *ProfileService) VerifyPIN(ctx context.Context, userID, id, pin string) error {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if !p.Parental.RequirePIN {
		return nil
	}
	if !auth.VerifyPIN(p.Parental.PINHash, pin) {
		return domain.ErrInvalidPIN
	}
	return nil
}

func (s *ProfileService) pointer(ctx context.Context, userID string) (string, bool) {
	if s.Active == nil {
		return "", false
	}
	id, ok, err := s.Active.Get(ctx, userID)
	if err != nil {
		s.logger().Warn("profiles: read active pointer failed", "err", err, "user_id", userID)
		return "", false
	}
	return id, ok
}

func (s *ProfileService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func applyParental(cur domain.ParentalControls, patch domain.ParentalControlsPatch) (domain.ParentalControls, error) {
	if patch.ContentRating.Present() {
		cur.ContentRating = patch.ContentRating.Value
	}
	if patch.WatchTimeLimit.Null {
		cur.WatchTimeLimit = nil
	} else if patch.WatchTimeLimit.Set {
		v := patch.WatchTimeLimit.Value
		cur.WatchTimeLimit = &v
	}
	if patch.RequirePIN.Present() {
		cur.RequirePIN = patch.RequirePIN.Value
	}
	if patch.PIN.Null {
		cur.PINHash = ""
	} else if patch.PIN.Set {
		hash, err := auth.HashPIN(patch.PIN.Value)
		if err != nil {
			return domain.ParentalControls{}, err
		}
		cur.PINHash = hash
	}
	if cur.RequirePIN && !cur.HasPIN() {
		return domain.ParentalControls{}, domain.FieldError("pin_code", "is required when require_pin is enabled")
	}
	return cur, nil
}

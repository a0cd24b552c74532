package httpapi

import (
	"strconv"
	"time"

	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/service"
)

type userResponse struct {
	ID              string     `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Email           string     `json:"email"`
	Phone           *string    `json:"phone"`
	DateOfBirth     *string    `json:"date_of_birth"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toUserResponse(u domain.User) userResponse {
	out := userResponse{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
	if u.Phone != "" {
		phone := u.Phone
		out.Phone = &phone
	}
	if u.DateOfBirth != nil {
		dob := u.DateOfBirth.Format(dateLayout)
		out.DateOfBirth = &dob
	}
	return out
}

type parentalControlsResponse struct {
	ContentRating  string `json:"content_rating"`
	WatchTimeLimit *int   `json:"watch_time_limit"`
	RequirePIN     bool   `json:"require_pin"`
	HasPIN         bool   `json:"has_pin"`
}

type preferencesResponse struct {
	Language         string `json:"language"`
	SubtitleLanguage string `json:"subtitle_language"`
	Quality          string `json:"quality"`
	Autoplay         bool   `json:"autoplay"`
	Notifications    bool   `json:"notifications"`
}

type profileResponse struct {
	ID               string                   `json:"id"`
	UserID           string                   `json:"user_id"`
	Name             string                   `json:"name"`
	Avatar           *string                  `json:"avatar"`
	KidsMode         bool                     `json:"kids_mode"`
	ParentalControls parentalControlsResponse `json:"parental_controls"`
	Preferences      preferencesResponse      `json:"preferences"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// toProfileResponse never exposes the PIN hash, only whether one is set.
func toProfileResponse(p domain.Profile) profileResponse {
	out := profileResponse{
		ID:       p.ID,
		UserID:   p.UserID,
		Name:     p.Name,
		KidsMode: p.KidsMode,
		ParentalControls: parentalControlsResponse{
			ContentRating:  p.Parental.ContentRating,
			WatchTimeLimit: p.Parental.WatchTimeLimit,
			RequirePIN:     p.Parental.RequirePIN,
			HasPIN:         p.Parental.HasPIN(),
		},
		Preferences: preferencesResponse{
			Language:         p.Preferences.Language,
			SubtitleLanguage: p.Preferences.SubtitleLanguage,
			Quality:          p.Preferences.Quality,
			Autoplay:         p.Preferences.Autoplay,
			Notifications:    p.Preferences.Notifications,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Avatar != "" {
		avatar := p.Avatar
		out.Avatar = &avatar
	}
	return out
}

type profileListResponse struct {
	Profiles  []profileResponse `json:"profiles"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Remaining int               `json:"remaining"`
	CurrentID *string           `json:"current_id"`
}

func toProfileListResponse(l service.ProfileList) profileListResponse {
	out := profileListResponse{
		Profiles:  make([]profileResponse, 0, len(l.Profiles)),
		Total:     len(l.Profiles),
		Limit:     l.Limit,
		Remaining: l.Remaining(),
	}
	for _, p := range l.Profiles {
		out.Profiles = append(out.Profiles, toProfileResponse(p))
	}
	if l.CurrentID != "" {
		id := l.CurrentID
		out.CurrentID = &id
	}
	return out
}

type tokenResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	Current    bool       `json:"current"`
}

func toTokenResponses(tokens []domain.AccessToken, currentID string) []tokenResponse {
	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenResponse{
			ID:         t.ID,
			Name:       t.Name,
			CreatedAt:  t.CreatedAt,
			LastUsedAt: t.LastUsedAt,
			Current:    t.ID == currentID,
		})
	}
	return out
}

type roleResponse struct {
	Name        string   `json:"name"`
	GuardName   string   `json:"guard_name"`
	Permissions []string `json:"permissions"`
}

func toRoleResponses(roles []domain.Role) []roleResponse {
	out := make([]roleResponse, 0, len(roles))
	for _, r := range roles {
		perms := r.Permissions
		if perms == nil {
			perms = []string{}
		}
		out = append(out, roleResponse{Name: r.Name, GuardName: r.GuardName, Permissions: perms})
	}
	return out
}

type userDetailResponse struct {
	User        userResponse `json:"user"`
	Roles       []string     `json:"roles"`
	Permissions []string     `json:"permissions"`
}

func toUserDetailResponse(d service.UserDetail) userDetailResponse {
	return userDetailResponse{
		User:        toUserResponse(d.User),
		Roles:       domain.RoleNames(d.Roles),
		Permissions: domain.SortedPermissions(d.Roles),
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

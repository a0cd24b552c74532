package httpapi

import (
	"fmt"
	"net/http"

	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/service"
)

// Request members use domain.Optional so that an absent member, an explicit
// null and a value stay distinguishable through the merge.
type parentalControlsRequest struct {
	ContentRating  domain.Optional[string] `json:"content_rating"`
	WatchTimeLimit domain.Optional[int]    `json:"watch_time_limit"`
	RequirePIN     domain.Optional[bool]   `json:"require_pin"`
	PINCode        domain.Optional[string] `json:"pin_code"`
}

func (p *parentalControlsRequest) patch() *domain.ParentalControlsPatch {
	if p == nil {
		return nil
	}
	return &domain.ParentalControlsPatch{
		ContentRating:  p.ContentRating,
		WatchTimeLimit: p.WatchTimeLimit,
		RequirePIN:     p.RequirePIN,
		PIN:            p.PINCode,
	}
}

type preferencesRequest struct {
	Language         domain.Optional[string] `json:"language"`
	SubtitleLanguage domain.Optional[string] `json:"subtitle_language"`
	Quality          domain.Optional[string] `json:"quality"`
	Autoplay         domain.Optional[bool]   `json:"autoplay"`
	Notifications    domain.Optional[bool]   `json:"notifications"`
}

func (p *preferencesRequest) patch() *domain.PreferencesPatch {
	if p == nil {
		return nil
	}
	return &domain.PreferencesPatch{
		Language:         p.Language,
		SubtitleLanguage: p.SubtitleLanguage,
		Quality:          p.Quality,
		Autoplay:         p.Autoplay,
		Notifications:    p.Notifications,
	}
}

type profileRequest struct {
	Name             domain.Optional[string]  `json:"name"`
	Avatar           domain.Optional[string]  `json:"avatar"`
	KidsMode         domain.Optional[bool]    `json:"kids_mode"`
	ParentalControls *parentalControlsRequest `json:"parental_controls"`
	Preferences      *preferencesRequest      `json:"preferences"`
}

func (req profileRequest) validate(create bool) error {
	fields := fieldErrors{}
	checkProfileName(fields, req.Name, create)
	checkAvatar(fields, req.Avatar)
	checkNotNull(fields, "kids_mode", req.KidsMode)
	checkParental(fields, req.ParentalControls)
	checkPreferences(fields, req.Preferences)
	return fields.err()
}

type verifyPINRequest struct {
	PINCode string `json:"pin_code"`
}

func (a *api) handleProfilesList(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	list, err := a.profileSvc.List(r.Context(), u.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Profiles retrieved successfully", toProfileListResponse(list))
}

func (a *api) handleProfilesCreate(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := req.validate(true); err != nil {
		WriteDomainError(w, err)
		return
	}

	p, err := a.profileSvc.Create(r.Context(), u.ID, service.CreateProfileInput{
		Name:        req.Name.Value,
		Avatar:      req.Avatar.Value,
		KidsMode:    req.KidsMode.Value,
		Parental:    req.ParentalControls.patch(),
		Preferences: req.Preferences.patch(),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusCreated, "Profile created successfully", toProfileResponse(p))
}

func (a *api) handleProfilesCurrent(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	p, err := a.profileSvc.Current(r.Context(), u.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Current profile retrieved successfully", toProfileResponse(p))
}

func (a *api) handleProfilesGet(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	p, err := a.profileSvc.Get(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Profile retrieved successfully", toProfileResponse(p))
}

func (a *api) handleProfilesUpdate(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if err := req.validate(false); err != nil {
		WriteDomainError(w, err)
		return
	}

	p, err := a.profileSvc.Update(r.Context(), u.ID, r.PathValue("id"), domain.ProfilePatch{
		Name:        req.Name,
		Avatar:      req.Avatar,
		KidsMode:    req.KidsMode,
		Parental:    req.ParentalControls.patch(),
		Preferences: req.Preferences.patch(),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Profile updated successfully", toProfileResponse(p))
}

func (a *api) handleProfilesDelete(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())
	id := r.PathValue("id")

	p, err := a.profileSvc.Get(r.Context(), u.ID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.profileSvc.Delete(r.Context(), u.ID, id); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, fmt.Sprintf("Profile '%s' deleted successfully", p.Name), map[string]any{
		"deleted_id":   p.ID,
		"deleted_name": p.Name,
	})
}

func (a *api) handleProfilesSwitch(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	p, err := a.profileSvc.Switch(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, fmt.Sprintf("Switched to profile '%s'", p.Name), map[string]any{
		"profile_id":   p.ID,
		"profile_name": p.Name,
		"kids_mode":    p.KidsMode,
		"active":       true,
	})
}

func (a *api) handleProfilesParental(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	var req parentalControlsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}
	fields := fieldErrors{}
	checkParental(fields, &req)
	if err := fields.err(); err != nil {
		WriteDomainError(w, err)
		return
	}

	p, err := a.profileSvc.UpdateParentalControls(r.Context(), u.ID, r.PathValue("id"), *req.patch())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Parental controls updated successfully", toProfileResponse(p))
}

func (a *api) handleProfilesPreferences(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	var req preferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}
	fields := fieldErrors{}
	checkPreferences(fields, &req)
	if err := fields.err(); err != nil {
		WriteDomainError(w, err)
		return
	}

	p, err := a.profileSvc.UpdatePreferences(r.Context(), u.ID, r.PathValue("id"), *req.patch())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Preferences updated successfully", toProfileResponse(p))
}

func (a *api) handleProfilesVerifyPIN(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	var req verifyPINRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}
	if !validPIN(req.PINCode) {
		WriteDomainError(w, domain.FieldError("pin_code", "must be exactly 4 digits"))
		return
	}

	if err := a.profileSvc.VerifyPIN(r.Context(), u.ID, r.PathValue("id"), req.PINCode); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "PIN verified successfully", map[string]any{"verified": true})
}

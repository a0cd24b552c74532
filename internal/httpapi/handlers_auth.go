package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"StreamAccounts/internal/domain"
	"StreamAccounts/internal/service"
)

const tokenType = "Bearer"

type registerRequest struct {
	FirstName            string  `json:"first_name"`
	LastName             string  `json:"last_name"`
	Email                string  `json:"email"`
	Password             string  `json:"password"`
	PasswordConfirmation string  `json:"password_confirmation"`
	Phone                *string `json:"phone"`
	DateOfBirth          *string `json:"date_of_birth"`
	DeviceName           string  `json:"device_name"`
}

func (a *api) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}

	fields := fieldErrors{}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = domain.NormalizeEmail(req.Email)
	checkPersonName(fields, "first_name", req.FirstName)
	checkPersonName(fields, "last_name", req.LastName)
	checkEmail(fields, req.Email)
	switch {
	case req.Password == "":
		fields.add("password", "is required")
	case req.Password != req.PasswordConfirmation:
		fields.add("password", "confirmation does not match")
	}

	in := service.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		DeviceName: req.DeviceName,
	}
	if req.Phone != nil {
		in.Phone = strings.TrimSpace(*req.Phone)
		if len(in.Phone) > maxPhoneLen {
			fields.add("phone", "must not exceed 20 characters")
		} else if !validPhone(in.Phone) {
			fields.add("phone", "may only contain digits, spaces and + ( ) -")
		}
	}
	if req.DateOfBirth != nil && strings.TrimSpace(*req.DateOfBirth) != "" {
		in.DateOfBirth = parseDateOfBirth(fields, strings.TrimSpace(*req.DateOfBirth), a.now())
	}
	if err := fields.err(); err != nil {
		WriteDomainError(w, err)
		return
	}

	u, tok, err := a.authSvc.Register(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	WriteData(w, http.StatusCreated, "User registered successfully. Please check your email to verify your account.", map[string]any{
		"user":       toUserResponse(u),
		"token":      tok.PlainText,
		"token_type": tokenType,
	})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	DeviceName string `json:"device_name"`
}

func (a *api) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}

	fields := fieldErrors{}
	req.Email = domain.NormalizeEmail(req.Email)
	checkEmail(fields, req.Email)
	if req.Password == "" {
		fields.add("password", "is required")
	}
	if err := fields.err(); err != nil {
		WriteDomainError(w, err)
		return
	}

	if !a.allow(w, "login:ip:"+clientIP(r), "login:email:"+req.Email) {
		return
	}

	u, tok, err := a.authSvc.Login(r.Context(), req.Email, req.Password, req.DeviceName)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	WriteData(w, http.StatusOK, "Login successful.", map[string]any{
		"user":        toUserResponse(u),
		"token":       tok.PlainText,
		"token_type":  tokenType,
		"remember_me": req.RememberMe,
	})
}

func (a *api) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	tok, ok := CurrentToken(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	if err := a.authSvc.Logout(r.Context(), tok.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Logged out successfully.", nil)
}

func (a *api) handleAuthLogoutAll(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())
	if err := a.authSvc.LogoutAll(r.Context(), u.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Logged out from all devices successfully.", nil)
}

func (a *api) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())

	data := map[string]any{"user": toUserResponse(u)}
	if a.authzSvc != nil {
		roles, err := a.authzSvc.UserRoles(r.Context(), u.ID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		data["roles"] = domain.RoleNames(roles)
		data["permissions"] = domain.SortedPermissions(roles)
	}
	WriteData(w, http.StatusOK, "User profile retrieved successfully.", data)
}

func (a *api) handleAuthTokens(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())
	cur, _ := CurrentToken(r.Context())

	tokens, err := a.authSvc.ListTokens(r.Context(), u.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Tokens retrieved successfully.", map[string]any{
		"tokens": toTokenResponses(tokens, cur.ID),
	})
}

func (a *api) handleAuthTokenRevoke(w http.ResponseWriter, r *http.Request) {
	u, _ := CurrentUser(r.Context())
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		handleNotFound(w, r)
		return
	}
	if err := a.authSvc.RevokeToken(r.Context(), u.ID, id); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Token revoked successfully.", nil)
}

// allow charges one attempt against every key and writes a 429 when any of
// them is over its limit.
func (a *api) allow(w http.ResponseWriter, keys ...string) bool {
	now := a.now()
	for _, key := range keys {
		ok, retryAfter := a.limiter.Allow(key, now)
		if !ok {
			secs := int(retryAfter.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many attempts. Please try again later.")
			return false
		}
	}
	return true
}

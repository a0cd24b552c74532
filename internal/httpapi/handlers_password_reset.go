package httpapi

import (
	"net/http"
	"strings"

	"StreamAccounts/internal/domain"
)

const forgotPasswordMessage = "If an account exists with this email, you will receive a password reset link."

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email                string `json:"email"`
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// handleAuthForgot answers the same way whether or not the address is
// registered.
func (a *api) handleAuthForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}

	fields := fieldErrors{}
	email := domain.NormalizeEmail(req.Email)
	checkEmail(fields, email)
	if err := fields.err(); err != nil {
		WriteDomainError(w, err)
		return
	}

	if !a.allow(w, "forgot:ip:"+clientIP(r), "forgot:email:"+email) {
		return
	}

	if err := a.resetSvc.RequestReset(r.Context(), email); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, forgotPasswordMessage, nil)
}

func (a *api) handleAuthReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidJSON(w)
		return
	}

	fields := fieldErrors{}
	email := domain.NormalizeEmail(req.Email)
	token := strings.TrimSpace(req.Token)
	checkEmail(fields, email)
	if token == "" {
		fields.add("token", "is required")
	}
	switch {
	case req.Password == "":
		fields.add("password", "is required")
	case req.Password != req.PasswordConfirmation:
		fields.add("password", "confirmation does not match")
	}
	if err := fields.err(); err != nil {
		WriteDomainError(w, err)
		return
	}

	if err := a.resetSvc.ResetPassword(r.Context(), email, token, req.Password); err != nil {
		a.fail(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, "Password reset successful. Please log in with your new password.", nil)
}

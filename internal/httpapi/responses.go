package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"StreamAccounts/internal/domain"
)

// envelope is the body of every JSON response. Success responses carry
// Message and Data; failures add a machine-readable Error code.
type envelope struct {
	Message string              `json:"message"`
	Error   string              `json:"error,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Detail  string              `json:"detail,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, envelope{Message: message, Data: data})
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, envelope{Message: message, Error: code})
}

// WriteDomainError maps err onto the error taxonomy. Errors it does not
// recognize become a bare 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	status, body := domainErrorBody(err)
	WriteJSON(w, status, body)
}

func domainErrorBody(err error) (int, envelope) {
	var (
		verr     *domain.ValidationError
		limitErr *domain.ProfileLimitError
		unverErr *domain.UnverifiedError
		guardErr *domain.GuardError
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, envelope{
			Message: "The given data was invalid.",
			Error:   "validation_error",
			Errors:  verr.Fields,
		}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, envelope{Message: "The given data was invalid.", Error: "validation_error"}
	case errors.Is(err, domain.ErrEmailTaken):
		return http.StatusUnprocessableEntity, envelope{
			Message: "The given data was invalid.",
			Error:   "email_taken",
			Errors:  map[string][]string{"email": {"has already been taken"}},
		}
	case errors.Is(err, domain.ErrDuplicateProfileName):
		return http.StatusUnprocessableEntity, envelope{
			Message: "A profile with this name already exists.",
			Error:   "duplicate_profile_name",
			Errors:  map[string][]string{"name": {"has already been taken"}},
		}
	case errors.As(err, &limitErr):
		return http.StatusUnprocessableEntity, envelope{
			Message: "Maximum profile limit (" + itoa(limitErr.Max) + ") reached",
			Error:   "profile_limit_exceeded",
			Data:    map[string]int{"current_count": limitErr.Count, "max_allowed": limitErr.Max},
		}
	case errors.Is(err, domain.ErrCannotDeleteOnlyProfile):
		return http.StatusBadRequest, envelope{
			Message: "You must keep at least one profile.",
			Error:   "cannot_delete_only_profile",
		}
	case errors.Is(err, domain.ErrRoleNotFound):
		return http.StatusUnprocessableEntity, envelope{
			Message: "The given data was invalid.",
			Error:   "role_not_found",
			Errors:  map[string][]string{"roles": {err.Error()}},
		}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, envelope{Message: "Invalid credentials.", Error: "invalid_credentials"}
	case errors.As(err, &unverErr):
		return http.StatusForbidden, envelope{
			Message: "Please verify your email address before logging in.",
			Error:   "email_not_verified",
			Data:    map[string]any{"requires_verification": true, "user_id": unverErr.UserID},
		}
	case errors.Is(err, domain.ErrEmailNotVerified):
		return http.StatusForbidden, envelope{Message: "Please verify your email address before logging in.", Error: "email_not_verified"}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, envelope{Message: "Unauthenticated.", Error: "unauthenticated"}
	case errors.As(err, &guardErr):
		key := "required_permissions"
		if guardErr.Kind == domain.GuardRole {
			key = "required_roles"
		}
		return http.StatusForbidden, envelope{
			Message: "You do not have the required " + string(guardErr.Kind) + " to access this resource.",
			Error:   "forbidden",
			Data:    map[string][]string{key: guardErr.Required},
		}
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden, envelope{Message: "You do not own this profile.", Error: "not_owner"}
	case errors.Is(err, domain.ErrInvalidPIN):
		return http.StatusForbidden, envelope{Message: "Invalid PIN.", Error: "invalid_pin"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, envelope{Message: "Forbidden.", Error: "forbidden"}
	case errors.Is(err, domain.ErrNoProfileFound):
		return http.StatusNotFound, envelope{Message: "No profile found.", Error: "no_profile_found"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, envelope{Message: "Not found.", Error: "not_found"}
	case errors.Is(err, domain.ErrResetTokenInvalid):
		return http.StatusUnprocessableEntity, envelope{Message: "Invalid or expired reset token.", Error: "invalid_or_expired_token"}
	case errors.Is(err, domain.ErrInvalidVerificationProof):
		return http.StatusUnprocessableEntity, envelope{Message: "Invalid verification link.", Error: "invalid_verification_link"}
	default:
		return http.StatusInternalServerError, envelope{Message: "An error occurred.", Error: "internal_error"}
	}
}

// fail writes err as a domain error. Unexpected errors are logged, and their
// text is exposed in detail only in debug mode.
func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := domainErrorBody(err)
	if status == http.StatusInternalServerError {
		requestLogger(r.Context(), a.logger).Error("request failed", "err", err, "method", r.Method, "path", r.URL.Path)
		if a.debug {
			body.Detail = err.Error()
		}
	}
	WriteJSON(w, status, body)
}

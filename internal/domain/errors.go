package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized             = errors.New("unauthenticated")
	ErrForbidden                = errors.New("forbidden")
	ErrNotOwner                 = fmt.Errorf("not profile owner: %w", ErrForbidden)
	ErrNotFound                 = errors.New("not_found")
	ErrEmailTaken               = errors.New("email_taken")
	ErrInvalidCredentials       = errors.New("invalid_credentials")
	ErrEmailNotVerified         = errors.New("email_not_verified")
	ErrResetTokenInvalid        = errors.New("invalid_or_expired_token")
	ErrInvalidVerificationProof = errors.New("invalid_verification_link")
	ErrProfileLimitExceeded     = errors.New("profile_limit_exceeded")
	ErrDuplicateProfileName     = errors.New("duplicate_profile_name")
	ErrCannotDeleteOnlyProfile  = errors.New("cannot_delete_only_profile")
	ErrNoProfileFound           = errors.New("no_profile_found")
	ErrRoleNotFound             = errors.New("role_not_found")
	ErrInvalidPIN               = errors.New("invalid_pin")
	ErrValidation               = errors.New("validation")
)

// ValidationError carries itemized field messages. A field may fail more
// than one rule, so each key maps to a list.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string][]string) error {
	return &ValidationError{Fields: fields}
}

// FieldError is shorthand for a validation failure on a single field.
func FieldError(field, message string) error {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

type ProfileLimitError struct {
	Count int
	Max   int
}

func (e *ProfileLimitError) Error() string {
	return fmt.Sprintf("maximum profile limit (%d) reached", e.Max)
}

func (e *ProfileLimitError) Unwrap() error { return ErrProfileLimitExceeded }

// UnverifiedError is returned by login when the password matched but the
// email address has not been confirmed yet.
type UnverifiedError struct {
	UserID string
}

func (e *UnverifiedError) Error() string { return "email not verified" }

func (e *UnverifiedError) Unwrap() error { return ErrEmailNotVerified }

type GuardKind string

const (
	GuardRole       GuardKind = "role"
	GuardPermission GuardKind = "permission"
)

type GuardError struct {
	Kind     GuardKind
	Required []string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("missing %s: %s", e.Kind, strings.Join(e.Required, "|"))
}

func (e *GuardError) Unwrap() error { return ErrForbidden }

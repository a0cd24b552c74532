package httpapi

import (
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"StreamAccounts/internal/domain"
)

const (
	maxNameLen        = 255
	maxEmailLen       = 255
	maxPhoneLen       = 20
	maxProfileNameLen = 50
	maxAvatarLen      = 500
	dateLayout        = "2006-01-02"
)

var minDateOfBirth = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// fieldErrors collects itemized validation failures.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return domain.NewValidationError(f)
}

func validPersonName(s string) bool {
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
		case r == ' ', r == '\'', r == '-':
		default:
			return false
		}
	}
	return true
}

func checkPersonName(f fieldErrors, field, v string) {
	switch {
	case v == "":
		f.add(field, "is required")
	case utf8.RuneCountInString(v) > maxNameLen:
		f.add(field, "must not exceed 255 characters")
	case !validPersonName(v):
		f.add(field, "may only contain letters, spaces, apostrophes and hyphens")
	}
}

func validEmail(s string) bool {
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

func checkEmail(f fieldErrors, v string) {
	switch {
	case v == "":
		f.add("email", "is required")
	case len(v) > maxEmailLen:
		f.add("email", "must not exceed 255 characters")
	case !validEmail(v):
		f.add("email", "must be a valid email address")
	}
}

func validPhone(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == ' ', r == '+', r == '(', r == ')', r == '-':
		default:
			return false
		}
	}
	return true
}

// parseDateOfBirth accepts YYYY-MM-DD strictly after 1900-01-01 and before
// today.
func parseDateOfBirth(f fieldErrors, v string, now time.Time) *time.Time {
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		f.add("date_of_birth", "must be a date in YYYY-MM-DD format")
		return nil
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !d.After(minDateOfBirth) || !d.Before(today) {
		f.add("date_of_birth", "must be after 1900-01-01 and before today")
		return nil
	}
	return &d
}

func validPIN(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func checkOneOf(f fieldErrors, field string, v domain.Optional[string], allowed []string) {
	if v.Null {
		f.add(field, "may not be null")
		return
	}
	if v.Set && !slices.Contains(allowed, v.Value) {
		f.add(field, "must be one of: "+strings.Join(allowed, ", "))
	}
}

func checkNotNull[T any](f fieldErrors, field string, v domain.Optional[T]) {
	if v.Null {
		f.add(field, "may not be null")
	}
}

func checkProfileName(f fieldErrors, v domain.Optional[string], required bool) {
	if !v.Set {
		if required {
			f.add("name", "is required")
		}
		return
	}
	name := strings.TrimSpace(v.Value)
	switch {
	case v.Null || name == "":
		f.add("name", "is required")
	case utf8.RuneCountInString(name) > maxProfileNameLen:
		f.add("name", "must not exceed 50 characters")
	}
}

func checkAvatar(f fieldErrors, v domain.Optional[string]) {
	if v.Present() && utf8.RuneCountInString(v.Value) > maxAvatarLen {
		f.add("avatar", "must not exceed 500 characters")
	}
}

func checkParental(f fieldErrors, p *parentalControlsRequest) {
	if p == nil {
		return
	}
	checkOneOf(f, "content_rating", p.ContentRating, domain.ContentRatings)
	if p.WatchTimeLimit.Present() {
		if v := p.WatchTimeLimit.Value; v < 0 || v > domain.MaxWatchTimeLimit {
			f.add("watch_time_limit", "must be between 0 and 1440")
		}
	}
	checkNotNull(f, "require_pin", p.RequirePIN)
	if p.PINCode.Present() && !validPIN(p.PINCode.Value) {
		f.add("pin_code", "must be exactly 4 digits")
	}
}

func checkPreferences(f fieldErrors, p *preferencesRequest) {
	if p == nil {
		return
	}
	checkOneOf(f, "language", p.Language, domain.Languages)
	checkOneOf(f, "subtitle_language", p.SubtitleLanguage, domain.SubtitleLanguages)
	checkOneOf(f, "quality", p.Quality, domain.PlaybackQualities)
	checkNotNull(f, "autoplay", p.Autoplay)
	checkNotNull(f, "notifications", p.Notifications)
}

package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

const (
	MaxProfilesPerUser = 5
	MaxWatchTimeLimit  = 1440 // minutes
)

var (
	ContentRatings    = []string{"G", "PG", "PG-13", "R", "NC-17"}
	Languages         = []string{"en", "es", "fr", "de", "pt", "ja", "zh", "ar", "hi"}
	SubtitleLanguages = append(append([]string{}, Languages...), "none")
	PlaybackQualities = []string{"auto", "480p", "720p", "1080p", "4k"}
)

type ParentalControls struct {
	ContentRating  string
	WatchTimeLimit *int
	RequirePIN     bool
	PINHash        string
}

func (p ParentalControls) HasPIN() bool { return p.PINHash != "" }

type Preferences struct {
	Language         string
	SubtitleLanguage string
	Quality          string
	Autoplay         bool
	Notifications    bool
}

func DefaultParentalControls() ParentalControls {
	return ParentalControls{ContentRating: "G"}
}

func DefaultPreferences() Preferences {
	return Preferences{
		Language:         "en",
		SubtitleLanguage: "en",
		Quality:          "auto",
		Autoplay:         true,
		Notifications:    true,
	}
}

type Profile struct {
	ID          string
	UserID      string
	Name        string
	Avatar      string
	KidsMode    bool
	Parental    ParentalControls
	Preferences Preferences
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type NewProfile struct {
	UserID      string
	Name        string
	Avatar      string
	KidsMode    bool
	Parental    ParentalControls
	Preferences Preferences
}

// Optional distinguishes an absent JSON member from an explicit null and
// from a concrete value, which merge-patch updates need.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: v} }

func Null[T any]() Optional[T] { return Optional[T]{Set: true, Null: true} }

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// Present reports whether a non-null value was supplied.
func (o Optional[T]) Present() bool { return o.Set && !o.Null }

type ParentalControlsPatch struct {
	ContentRating  Optional[string]
	WatchTimeLimit Optional[int]
	RequirePIN     Optional[bool]
	PIN            Optional[string]
}

type PreferencesPatch struct {
	Language         Optional[string]
	SubtitleLanguage Optional[string]
	Quality          Optional[string]
	Autoplay         Optional[bool]
	Notifications    Optional[bool]
}

// Apply merges the supplied members over p. Null clears nothing here since
// every preference is non-nullable; a null member is treated as absent.
func (p Preferences) Apply(patch PreferencesPatch) Preferences {
	if patch.Language.Present() {
		p.Language = patch.Language.Value
	}
	if patch.SubtitleLanguage.Present() {
		p.SubtitleLanguage = patch.SubtitleLanguage.Value
	}
	if patch.Quality.Present() {
		p.Quality = patch.Quality.Value
	}
	if patch.Autoplay.Present() {
		p.Autoplay = patch.Autoplay.Value
	}
	if patch.Notifications.Present() {
		p.Notifications = patch.Notifications.Value
	}
	return p
}

type ProfilePatch struct {
	Name        Optional[string]
	Avatar      Optional[string]
	KidsMode    Optional[bool]
	Parental    *ParentalControlsPatch
	Preferences *PreferencesPatch
}

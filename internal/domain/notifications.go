package domain

type NotificationEvent string

const (
	EventEmailVerification NotificationEvent = "email_verification"
	EventPasswordReset     NotificationEvent = "password_reset"
)

// Notification is a single outbound message request. Data carries the
// event-specific values (links, tokens) the sender renders.
type Notification struct {
	Event  NotificationEvent
	UserID string
	Email  string
	Name   string
	Data   map[string]string
}

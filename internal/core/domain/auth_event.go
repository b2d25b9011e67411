package domain

import "time"

// AuthEventType names an entry in the authentication audit trail.
type AuthEventType string

const (
	EventLoginSucceeded AuthEventType = "login_succeeded"
	EventLoginFailed    AuthEventType = "login_failed"
	EventSignup         AuthEventType = "signup"
	EventLogout         AuthEventType = "logout"
	EventPasswordReset  AuthEventType = "password_reset"
	EventKYCUpdated     AuthEventType = "kyc_updated"
)

// AuthEvent records something that happened to an account.
type AuthEvent struct {
	ID         string
	Type       AuthEventType
	IdentityID string // empty when the account could not be resolved
	Email      string
	Role       Role
	Detail     string
	OccurredAt time.Time
}

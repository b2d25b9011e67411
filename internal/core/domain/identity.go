package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the closed set of portal roles. Each role unlocks exactly one dashboard.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
	RoleBroker   Role = "broker"
	RoleCustomer Role = "customer"
)

// AdminID is the reserved identifier of the singleton admin identity.
const AdminID = "ADMIN001"

// Roles lists every role in display order.
var Roles = []Role{RoleAdmin, RoleOwner, RoleBroker, RoleCustomer}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleBroker, RoleCustomer:
		return true
	}
	return false
}

// SelfRegistrable reports whether accounts of this role may be created through signup.
func (r Role) SelfRegistrable() bool {
	return r == RoleOwner || r == RoleBroker || r == RoleCustomer
}

// Subscribes reports whether the role carries a subscription (owners and brokers).
func (r Role) Subscribes() bool {
	return r == RoleOwner || r == RoleBroker
}

// ParseRole maps a stored or backend-provided role string onto the enum.
// Anything unrecognised resolves to RoleCustomer, the least privileged role.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r
	}
	return RoleCustomer
}

// KYCStatus tracks know-your-customer verification.
type KYCStatus string

const (
	KYCPending  KYCStatus = "pending"
	KYCVerified KYCStatus = "verified"
	KYCRejected KYCStatus = "rejected"
)

func (k KYCStatus) Valid() bool {
	return k == KYCPending || k == KYCVerified || k == KYCRejected
}

// SubscriptionStatus is only meaningful for owners and brokers.
type SubscriptionStatus string

const (
	SubscriptionNone    SubscriptionStatus = ""
	SubscriptionTrial   SubscriptionStatus = "trial"
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrAdminSignup        = errors.New("admin accounts cannot be self-registered")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidKYCStatus   = errors.New("invalid kyc status")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrForbidden          = errors.New("access forbidden")
)

// Identity is the authenticated user record.
type Identity struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Phone              string             `json:"phone,omitempty"`
	Role               Role               `json:"role"`
	KYCStatus          KYCStatus          `json:"kyc_status"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status,omitempty"`
	PasswordHash       string             `json:"-"`
	CreatedAt          time.Time          `json:"created_at"`
}

// NormalizeEmail returns the form used for uniqueness and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var (
	ErrInvalidSignup = errors.New("invalid signup")
	// ErrDuplicateID is returned by repositories when an allocated identifier is
	// already taken, typically by another instance sharing the database.
	ErrDuplicateID = errors.New("identifier already allocated")
)

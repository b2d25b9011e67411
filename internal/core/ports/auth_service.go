package ports

import (
	"context"
	"time"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
)

// SignupInput carries the self-registration form.
type SignupInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     domain.Role
}

// Grant is an issued session: a bearer token plus the identity it belongs to.
type Grant struct {
	Token     string
	ExpiresAt time.Time
	Identity  *domain.Identity
}

// SessionClaims are the verified contents of a bearer token.
type SessionClaims struct {
	Subject   string
	Email     string
	Role      domain.Role
	TokenID   string
	ExpiresAt time.Time
}

// AuthService is the credential validator and session issuer.
type AuthService interface {
	VerifyToken(ctx context.Context, token string) (*SessionClaims, error)
	Signup(ctx context.Context, input SignupInput) (*Grant, error)
	Login(ctx context.Context, email, password string) (*Grant, error)
	Logout(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*domain.Identity, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
}

// ListIdentitiesInput carries the admin listing parameters.
type ListIdentitiesInput struct {
	Role      string
	KYCStatus string
	Search    string
	Page      int
	Limit     int
}

// ListIdentitiesResult is one page of identities.
type ListIdentitiesResult struct {
	Items      []*domain.Identity
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// IdentityAdminService backs the admin dashboard's account management.
type IdentityAdminService interface {
	ListIdentities(ctx context.Context, input ListIdentitiesInput) (*ListIdentitiesResult, error)
	SetKYCStatus(ctx context.Context, id string, status domain.KYCStatus) (*domain.Identity, error)
}

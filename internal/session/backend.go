package session

import (
	"context"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

// Backend is the identity service the Store authenticates against.
//
// Implementations report a wrong email or password as
// domain.ErrInvalidCredentials, an email collision at signup as
// domain.ErrEmailExists and a dead or revoked token as
// domain.ErrSessionExpired. Any other error is treated as a transient failure.
type Backend interface {
	SignIn(ctx context.Context, email, password string) (*ports.Grant, error)
	SignUp(ctx context.Context, fields ports.SignupInput) (*ports.Grant, error)
	SignOut(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*domain.Identity, error)
}

type serviceBackend struct {
	svc ports.AuthService
}

// NewServiceBackend runs the Store directly against an in-process AuthService.
func NewServiceBackend(svc ports.AuthService) Backend {
	return &serviceBackend{svc: svc}
}

func (b *serviceBackend) SignIn(ctx context.Context, email, password string) (*ports.Grant, error) {
	return b.svc.Login(ctx, email, password)
}

func (b *serviceBackend) SignUp(ctx context.Context, fields ports.SignupInput) (*ports.Grant, error) {
	return b.svc.Signup(ctx, fields)
}

func (b *serviceBackend) SignOut(ctx context.Context, token string) error {
	return b.svc.Logout(ctx, token)
}

func (b *serviceBackend) CurrentUser(ctx context.Context, token string) (*domain.Identity, error) {
	return b.svc.CurrentUser(ctx, token)
}

package ports

import (
	"context"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
)

// ListIdentitiesFilter carries the admin listing parameters.
type ListIdentitiesFilter struct {
	Role      domain.Role      // optional
	KYCStatus domain.KYCStatus // optional
	Search    string           // optional: partial match on name or email
	Page      int              // 1-based
	Limit     int              // capped at 100 by the service
}

// IdentityRepository defines persistence for identities and their credentials.
type IdentityRepository interface {
	// Create inserts a new identity. A case-insensitive email collision
	// returns domain.ErrEmailExists.
	Create(ctx context.Context, identity *domain.Identity) error
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
	// CountByRole returns how many identities exist per role; used to seed ID allocation.
	CountByRole(ctx context.Context) (map[domain.Role]int, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateKYCStatus(ctx context.Context, id string, status domain.KYCStatus) error
	List(ctx context.Context, filter ListIdentitiesFilter) ([]*domain.Identity, int64, error)
}

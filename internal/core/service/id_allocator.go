package service

import (
	"fmt"
	"sync"

	"github.com/ecrbeachresorts/portal/internal/core/domain"
)

// rolePrefixes are fixed per role; together with the per-role sequence they
// keep identifiers unique across the whole portal.
var rolePrefixes = map[domain.Role]string{
	domain.RoleCustomer: "ECC1547",
	domain.RoleOwner:    "ECO2547",
	domain.RoleBroker:   "ECB3547",
}

const sequenceWidth = 3

// IDAllocator hands out role-scoped identifiers of the form <prefix><sequence>.
// Each role owns an independent counter seeded from the identities that
// already exist, so sequences never repeat within a role.
type IDAllocator struct {
	mu   sync.Mutex
	next map[domain.Role]int
}

// NewIDAllocator seeds one counter per self-registrable role from existing counts.
func NewIDAllocator(existing map[domain.Role]int) *IDAllocator {
	a := &IDAllocator{}
	a.Reset(existing)
	return a
}

// Reset reseeds every counter.
func (a *IDAllocator) Reset(existing map[domain.Role]int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.next = make(map[domain.Role]int, len(rolePrefixes))
	for role := range rolePrefixes {
		a.next[role] = existing[role] + 1
	}
}

// NextID returns the next identifier for role. The admin identity is
// reserved and never allocated here.
func (a *IDAllocator) NextID(role domain.Role) (string, error) {
	if role == domain.RoleAdmin {
		return "", domain.ErrAdminSignup
	}
	prefix, ok := rolePrefixes[role]
	if !ok {
		return "", fmt.Errorf("allocate id: %w: %q", domain.ErrInvalidRole, role)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seq := a.next[role]
	a.next[role] = seq + 1
	return fmt.Sprintf("%s%0*d", prefix, sequenceWidth, seq), nil
}

// RoleOf classifies an identifier by its prefix.
func RoleOf(id string) (domain.Role, bool) {
	if id == domain.AdminID {
		return domain.RoleAdmin, true
	}
	for role, prefix := range rolePrefixes {
		if len(id) > len(prefix) && id[:len(prefix)] == prefix {
			return role, true
		}
	}
	return "", false
}
